// Package clientid hands out gateway client IDs to tool processes.
//
// Each tool category owns a fixed window of IDs, offset from a configurable
// floor. Auto mode claims the lowest free ID in the window through a lock
// store; fixed mode returns a configured ID untouched.
package clientid

import (
	"fmt"
	"slices"
	"strings"

	"github.com/iborker/iborker/internal/errors"
)

// Category is a tool category. Each category owns one offset range.
type Category string

// Registered categories.
const (
	CategoryCLI      Category = "cli"
	CategoryTrader   Category = "trader"
	CategoryAnalyzer Category = "analyzer"
)

// Range is a category's window relative to the allocation floor:
// [floor+StartOffset, floor+StartOffset+Width).
type Range struct {
	Category    Category
	StartOffset int
	Width       int
}

// Span returns the half-open absolute range [lo, hi) for floor.
func (r Range) Span(floor int) (lo, hi int) {
	lo = floor + r.StartOffset
	return lo, lo + r.Width
}

// Contains reports whether id falls in the range for floor.
func (r Range) Contains(floor, id int) bool {
	lo, hi := r.Span(floor)
	return id >= lo && id < hi
}

// Candidates returns the IDs of the range for floor in scan order.
func (r Range) Candidates(floor int) []int {
	lo, hi := r.Span(floor)
	ids := make([]int, 0, r.Width)
	for id := lo; id < hi; id++ {
		ids = append(ids, id)
	}
	return ids
}

func (r Range) String() string {
	return fmt.Sprintf("%s[+%d, +%d)", r.Category, r.StartOffset, r.StartOffset+r.Width)
}

// ranges is the offset table, in offset order. Offsets 30 and up are free
// for future categories.
var ranges = []Range{
	{Category: CategoryCLI, StartOffset: 0, Width: 10},
	{Category: CategoryTrader, StartOffset: 10, Width: 10},
	{Category: CategoryAnalyzer, StartOffset: 20, Width: 10},
}

// retiredOffsets lists start offsets of removed categories. They are never
// handed to a new category, so a stale process built against an old table
// cannot collide with a new one.
var retiredOffsets []int

// toolCategories maps the tool names of the suite onto categories.
var toolCategories = map[string]Category{
	"cli":       CategoryCLI,
	"history":   CategoryCLI,
	"contracts": CategoryCLI,
	"roll":      CategoryCLI,
	"trader":    CategoryTrader,
	"stdev":     CategoryAnalyzer,
	"analyzer":  CategoryAnalyzer,
}

// RangeFor returns the offset range of a category.
func RangeFor(c Category) (Range, error) {
	for _, r := range ranges {
		if r.Category == c {
			return r, nil
		}
	}
	return Range{}, errors.Wrapf(errors.ErrUnknownCategory, "%q", string(c))
}

// CategoryOf returns the category whose range contains id for floor.
func CategoryOf(floor, id int) (Category, bool) {
	for _, r := range ranges {
		if r.Contains(floor, id) {
			return r.Category, true
		}
	}
	return "", false
}

// Categories returns the registered categories in offset order.
func Categories() []Category {
	out := make([]Category, len(ranges))
	for i, r := range ranges {
		out[i] = r.Category
	}
	return out
}

// Ranges returns a copy of the offset table in offset order.
func Ranges() []Range {
	return slices.Clone(ranges)
}

// ParseTool maps a tool name (or a category name) onto its category.
func ParseTool(name string) (Category, error) {
	if c, ok := toolCategories[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, nil
	}
	return "", errors.Wrapf(errors.ErrUnknownCategory, "tool %q", name)
}

// Tools returns the tool names that map onto c, sorted.
func Tools(c Category) []string {
	var names []string
	for name, cat := range toolCategories {
		if cat == c {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// checkTable verifies the table invariants: positive widths, non-negative
// offsets, no overlap and no reuse of a retired offset.
func checkTable(table []Range, retired []int) error {
	seen := make(map[Category]bool)
	for i, r := range table {
		if r.StartOffset < 0 || r.Width <= 0 {
			return fmt.Errorf("range %s: offset must be >= 0 and width > 0", r)
		}
		if seen[r.Category] {
			return fmt.Errorf("category %s registered twice", r.Category)
		}
		seen[r.Category] = true
		if slices.Contains(retired, r.StartOffset) {
			return fmt.Errorf("range %s reuses retired offset %d", r, r.StartOffset)
		}
		for _, other := range table[i+1:] {
			if r.StartOffset < other.StartOffset+other.Width && other.StartOffset < r.StartOffset+r.Width {
				return fmt.Errorf("ranges %s and %s overlap", r, other)
			}
		}
	}
	return nil
}
