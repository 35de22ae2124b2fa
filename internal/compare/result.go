// Package compare holds the canonical comparison result, its normalization
// from the backend's response shapes, the display helpers, the export
// renderers and the single-shot comparison orchestrator.
package compare

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Section titles used for the two tabular sections a result may carry.
const (
	ClauseSection  = "Clause-Level Comparison"
	ProductSection = "Product & Unit Price Comparison"
)

// ErrNoResult is returned when a response carries no usable comparison data.
var ErrNoResult = errors.New("no comparison data available")

// Category is the backend-side filter forwarded verbatim as doc_type.
type Category string

const (
	CategoryAll     Category = "all"
	CategoryProduct Category = "product"
	CategoryProject Category = "project"
	CategoryService Category = "service"
)

// Categories lists every accepted category in display order.
var Categories = []Category{CategoryAll, CategoryProduct, CategoryProject, CategoryService}

// ParseCategory validates s. The empty string selects CategoryAll.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryAll, nil
	}
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q (want one of all, product, project, service)", s)
}

// Section is one titled table of a comparison.
type Section struct {
	Title   string     `json:"title"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Statistics are the optional match counters of legacy row responses.
type Statistics struct {
	Matches    int `json:"matches"`
	Mismatches int `json:"mismatches"`
	Total      int `json:"total"`
}

// Result is the canonical comparison result. Raw keeps the backend payload
// so it can be sent back verbatim for PDF export.
type Result struct {
	Summary    string          `json:"summary,omitempty"`
	Sections   []Section       `json:"sections"`
	Statistics *Statistics     `json:"statistics,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Section returns the section with the given title, if present.
func (r *Result) Section(title string) (Section, bool) {
	for _, s := range r.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return Section{}, false
}

// Empty reports whether r carries neither tables nor a summary.
func (r *Result) Empty() bool {
	if r == nil {
		return true
	}
	if strings.TrimSpace(r.Summary) != "" {
		return false
	}
	for _, s := range r.Sections {
		if len(s.Headers) > 0 || len(s.Rows) > 0 {
			return false
		}
	}
	return true
}
