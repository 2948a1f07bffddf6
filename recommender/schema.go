package recommender

import (
	"fmt"
	"slices"
	"strings"
)

type MatchKind int

const (
	// MatchExact compares the column with =.
	MatchExact MatchKind = iota
	// MatchSubstring is a case-insensitive ILIKE '%value%'.
	MatchSubstring
)

// Filter says how a slot becomes a WHERE clause.
type Filter struct {
	Column string
	Match  MatchKind
	// CastText compares the text form of a json column.
	CastText bool
}

func (f Filter) Expr() string {
	if f.CastText {
		return f.Column + "::text"
	}

	return f.Column
}

// Schema describes the catalog table the composer may query. It is built once
// at startup and only read afterwards.
type Schema struct {
	Table      string
	Selectable []string
	Filters    map[Slot]Filter
	Categories []Category
}

func DefaultSchema() Schema {
	return NewSchema("products")
}

func NewSchema(table string) Schema {
	return Schema{
		Table:      table,
		Selectable: []string{"_id", "title", "url"},
		Filters: map[Slot]Filter{
			SlotCategory:    {Column: "category", Match: MatchExact},
			SlotProductName: {Column: "title", Match: MatchSubstring},
			SlotSubject:     {Column: "product_details", Match: MatchSubstring, CastText: true},
			SlotColor:       {Column: "product_details", Match: MatchSubstring, CastText: true},
			SlotBrand:       {Column: "brand", Match: MatchSubstring},
		},
		Categories: Categories,
	}
}

// FilterColumns returns the distinct columns a WHERE clause may reference.
func (s Schema) FilterColumns() []string {
	seen := make(map[string]bool)
	var columns []string
	for _, slot := range Slots {
		filter, ok := s.Filters[slot]
		if !ok || seen[filter.Column] {
			continue
		}
		seen[filter.Column] = true
		columns = append(columns, filter.Column)
	}

	return columns
}

// AllowedColumns is the full whitelist: filter columns plus selectable ones.
func (s Schema) AllowedColumns() map[string]bool {
	allowed := make(map[string]bool)
	for _, c := range s.FilterColumns() {
		allowed[c] = true
	}
	for _, c := range s.Selectable {
		allowed[c] = true
	}

	return allowed
}

func (s Schema) CategoryColumn() string {
	return s.Filters[SlotCategory].Column
}

// Describe renders the table information handed to the query model.
func (s Schema) Describe() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Table %s\n", s.Table)
	fmt.Fprintf(&b, "Selectable columns: %s\n", strings.Join(s.Selectable, ", "))
	b.WriteString("Filter columns:\n")
	for _, slot := range Slots {
		filter, ok := s.Filters[slot]
		if !ok {
			continue
		}
		kind := "substring, case-insensitive"
		if filter.Match == MatchExact {
			kind = "exact"
		}
		fmt.Fprintf(&b, "  %s -> %s (%s)\n", slot, filter.Expr(), kind)
	}
	quoted := make([]string, len(s.Categories))
	for i, c := range s.Categories {
		quoted[i] = "'" + string(c) + "'"
	}
	fmt.Fprintf(&b, "Values of %s: %s\n", s.CategoryColumn(), strings.Join(quoted, ", "))

	return b.String()
}

// Validate checks that every configured column exists in the live table.
func (s Schema) Validate(columns []string) error {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}

	var missing []string
	for c := range s.AllowedColumns() {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("table %s is missing columns: %s", s.Table, strings.Join(missing, ", "))
	}

	return nil
}
