package model

import (
	"strings"
	"time"
)

// Status is the classification outcome of a single catalog query.
type Status string

const (
	StatusFound       Status = "FOUND"
	StatusNotFound    Status = "NOT_FOUND"
	StatusCheckManual Status = "CHECK_MANUAL"
	StatusError       Status = "ERROR"
)

// AllStatuses returns every status in reporting order.
func AllStatuses() []Status {
	return []Status{StatusFound, StatusNotFound, StatusCheckManual, StatusError}
}

// ParseStatus maps a status cell back to a Status. Legacy spellings with a
// space ("NOT FOUND", "CHECK MANUAL") are accepted.
func ParseStatus(s string) (Status, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	for _, st := range AllStatuses() {
		if string(st) == norm {
			return st, true
		}
	}
	return "", false
}

// ItemTypeOther is the item type used when no part-type keyword matches.
const ItemTypeOther = "OTHER"

// NoCrossesMarker is written in the Crosses column for FOUND items that
// yielded no pairs.
const NoCrossesMarker = "No Crosses Found"

// TimestampLayout is the layout of the Timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// CrossReference is one alternate manufacturer part number for an item code.
type CrossReference struct {
	ItemCode string `json:"item_code"`
	Owner    string `json:"owner"`
	Number   string `json:"number"`
	Strategy string `json:"strategy,omitempty"`
}

// Key returns the business key (normalized item code, owner, number).
func (c CrossReference) Key() [3]string {
	return [3]string{NormalizeCode(c.ItemCode), c.Owner, c.Number}
}

// QueryResult is the outcome of querying one item code. It is built once and
// never modified afterwards.
type QueryResult struct {
	No          int              `json:"no"`
	ItemCode    string           `json:"item_code"`
	CleanedCode string           `json:"cleaned_code"`
	Status      Status           `json:"status"`
	ItemType    string           `json:"item_type"`
	MatchedCode string           `json:"matched_code,omitempty"`
	Details     string           `json:"details"`
	Crosses     []CrossReference `json:"crosses,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// CrossesString serializes the pairs as "owner=number; owner=number".
// FOUND results without pairs get NoCrossesMarker.
func (r QueryResult) CrossesString() string {
	if len(r.Crosses) == 0 {
		if r.Status == StatusFound {
			return NoCrossesMarker
		}
		return ""
	}
	parts := make([]string, len(r.Crosses))
	for i, c := range r.Crosses {
		parts[i] = c.Owner + "=" + c.Number
	}
	return strings.Join(parts, "; ")
}

// ParseCrosses is the inverse of CrossesString.
func ParseCrosses(itemCode, s string) []CrossReference {
	s = strings.TrimSpace(s)
	if s == "" || s == NoCrossesMarker {
		return nil
	}
	var out []CrossReference
	for _, part := range strings.Split(s, ";") {
		owner, number, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		out = append(out, CrossReference{
			ItemCode: itemCode,
			Owner:    strings.TrimSpace(owner),
			Number:   strings.TrimSpace(number),
		})
	}
	return out
}

// ValidationRecord is one row of an external validation dataset.
type ValidationRecord struct {
	ItemCode string            `json:"item_code"`
	Status   string            `json:"status"`
	Details  string            `json:"details"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Value returns the named column of the record. status and details map to
// their dedicated fields.
func (v ValidationRecord) Value(column string) string {
	switch column {
	case "status":
		return v.Status
	case "details":
		return v.Details
	}
	return v.Extra[column]
}
