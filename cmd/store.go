package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crossref-cli/internal/store"
)

// initStore opens the run ledger and applies the schema.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, eris.Wrap(err, "store config")
	}
	st, err := store.NewSQLite(cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
