// Package model defines the domain types shared by the crawl, checkpoint and merge stages.
package model

import "strings"

// NormalizeCode trims surrounding whitespace and strips a single trailing
// period. Item codes are only ever compared in this form.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.TrimSuffix(code, ".")
	return code
}

// ItemQuery is one item code queued for lookup.
type ItemQuery struct {
	ItemCode    string `json:"item_code"`
	CleanedCode string `json:"cleaned_code"`
}

// NewItemQuery builds an ItemQuery from a raw code.
func NewItemQuery(raw string) ItemQuery {
	return ItemQuery{
		ItemCode:    raw,
		CleanedCode: NormalizeCode(raw),
	}
}

// Key returns the comparison key for the query.
func (q ItemQuery) Key() string {
	return q.CleanedCode
}
