package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crossref-cli/internal/catalog"
	"github.com/sells-group/crossref-cli/internal/extract"
)

var extractCmd = &cobra.Command{
	Use:   "extract <page.html|page.txt>",
	Short: "Classify a saved catalog page and print the cross references found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := extract.LoadProfile(cfg.Extract.Profile)
		if err != nil {
			return err
		}
		code, _ := cmd.Flags().GetString("code")
		return runExtract(cmd.Context(), os.Stdout, profile, cfg.Extract.Strategies, args[0], code)
	},
}

// runExtract runs the classifier and the extraction chain over a saved page.
// Detail links are not followed since there is no live session.
func runExtract(ctx context.Context, w io.Writer, profile *extract.Profile, strategies []string, path, code string) error {
	body, err := os.ReadFile(path) // #nosec G304 -- operator-supplied page
	if err != nil {
		return eris.Wrapf(err, "extract: read %s", path)
	}

	if code == "" {
		code = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	var content *catalog.Content
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		content, err = catalog.NewContent(nil, "file://"+filepath.ToSlash(path), body)
		if err != nil {
			return err
		}
	default:
		content = catalog.TextContent(string(body))
	}

	classifier, err := extract.NewClassifier(profile)
	if err != nil {
		return err
	}
	engine, err := extract.NewEngine(profile, strategies, false)
	if err != nil {
		return err
	}

	cls := classifier.Classify(content.Text, code)
	pairs := engine.Extract(ctx, content)
	formatExtraction(w, code, cls, pairs)
	return nil
}

func init() {
	extractCmd.Flags().String("code", "", "item code the page was fetched for (default: file name)")
	rootCmd.AddCommand(extractCmd)
}
