package recommender

import (
	"fmt"
	"strings"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// Clause renders the WHERE condition for one slot value.
func (f Filter) Clause(value string) string {
	if f.Match == MatchExact {
		return fmt.Sprintf("%s = %s", f.Expr(), quoteLiteral(value))
	}

	return fmt.Sprintf("%s ILIKE %s", f.Expr(), quoteLiteral("%"+likeEscaper.Replace(value)+"%"))
}

// Template builds the statement for slots without asking a model. Every
// non-empty slot adds one clause; subject and color stay separate clauses
// even though they hit the same column.
func (s Schema) Template(slots AttributeSlots, topK int) string {
	var clauses []string
	for _, slot := range Slots {
		value := strings.TrimSpace(slots.Value(slot))
		filter, ok := s.Filters[slot]
		if value == "" || !ok {
			continue
		}
		if slot == SlotProductName {
			value = singular(value)
		}
		clauses = append(clauses, filter.Clause(value))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(s.Selectable, ", "), s.Table)
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	fmt.Fprintf(&b, " LIMIT %d", topK)

	return b.String()
}

// singular trims an English plural ending. The result is always a prefix of
// the input, so a substring match on it finds at least what the plural finds.
func singular(word string) string {
	lower := strings.ToLower(word)
	if len(lower) <= 3 || strings.HasSuffix(lower, "ss") {
		return word
	}
	for _, suffix := range []string{"ches", "shes", "sses", "xes"} {
		if strings.HasSuffix(lower, suffix) {
			return word[:len(word)-2]
		}
	}
	if strings.HasSuffix(lower, "s") {
		return word[:len(word)-1]
	}

	return word
}
