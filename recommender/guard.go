package recommender

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ComposedQuery is a statement that passed the Guard and may be executed.
type ComposedQuery string

func (q ComposedQuery) String() string {
	return string(q)
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind  tokenKind
	text  string
	start int
	end   int
}

func (t token) is(word string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, word)
}

func (t token) punct(p string) bool {
	return t.kind == tokPunct && t.text == p
}

var twoCharPuncts = []string{"::", "<=", ">=", "<>", "!=", "||"}

// lex splits a statement into tokens. It only knows as much SQL as the guard
// needs and fails on anything it cannot classify.
func lex(q string) ([]token, error) {
	var tokens []token

	for i := 0; i < len(q); {
		c := q[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.HasPrefix(q[i:], "--") || strings.HasPrefix(q[i:], "/*"):
			return nil, fmt.Errorf("comments are not allowed")
		case c == '\'':
			var b strings.Builder
			j := i + 1
			for {
				if j >= len(q) {
					return nil, fmt.Errorf("unterminated string literal")
				}
				if q[j] == '\'' {
					if j+1 < len(q) && q[j+1] == '\'' {
						b.WriteByte('\'')
						j += 2
						continue
					}
					break
				}
				b.WriteByte(q[j])
				j++
			}
			tokens = append(tokens, token{kind: tokString, text: b.String(), start: i, end: j + 1})
			i = j + 1
		case c == '"':
			j := strings.IndexByte(q[i+1:], '"')
			if j < 0 {
				return nil, fmt.Errorf("unterminated quoted identifier")
			}
			tokens = append(tokens, token{kind: tokQuoted, text: q[i+1 : i+1+j], start: i, end: i + j + 2})
			i += j + 2
		case c == '_' || unicode.IsLetter(rune(c)):
			j := i + 1
			for j < len(q) && (q[j] == '_' || q[j] == '$' || unicode.IsLetter(rune(q[j])) || unicode.IsDigit(rune(q[j]))) {
				j++
			}
			tokens = append(tokens, token{kind: tokWord, text: q[i:j], start: i, end: j})
			i = j
		case unicode.IsDigit(rune(c)):
			j := i + 1
			for j < len(q) && (unicode.IsDigit(rune(q[j])) || q[j] == '.') {
				j++
			}
			tokens = append(tokens, token{kind: tokNumber, text: q[i:j], start: i, end: j})
			i = j
		default:
			width := 0
			for _, p := range twoCharPuncts {
				if strings.HasPrefix(q[i:], p) {
					width = 2
					break
				}
			}
			if width == 0 {
				if !strings.ContainsRune("(),=<>*.;%+-/", rune(c)) {
					return nil, fmt.Errorf("unexpected character %q", c)
				}
				width = 1
			}
			tokens = append(tokens, token{kind: tokPunct, text: q[i : i+width], start: i, end: i + width})
			i += width
		}
	}

	return tokens, nil
}

var sqlKeywords = map[string]bool{
	"WHERE": true, "AND": true, "OR": true, "NOT": true, "ILIKE": true, "LIKE": true,
	"IN": true, "IS": true, "NULL": true, "TRUE": true, "FALSE": true, "ESCAPE": true,
	"ORDER": true, "BY": true, "ASC": true, "DESC": true, "NULLS": true, "FIRST": true,
	"LAST": true, "LIMIT": true, "OFFSET": true, "AS": true, "TEXT": true, "VARCHAR": true,
}

var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "DROP": true, "ALTER": true,
	"CREATE": true, "TRUNCATE": true, "GRANT": true, "REVOKE": true, "COPY": true, "CALL": true,
	"DO": true, "EXECUTE": true, "SET": true, "INTO": true, "RETURNING": true, "WITH": true,
	"SELECT": true, "FROM": true, "UNION": true, "INTERSECT": true, "EXCEPT": true,
	"JOIN": true, "GROUP": true, "HAVING": true, "PG_SLEEP": true,
}

var allowedFunctions = map[string]bool{
	"LOWER": true, "UPPER": true, "TRIM": true, "CAST": true,
}

// Guard is the last check a generated statement passes before it reaches the
// catalog. It accepts a single PostgreSQL SELECT of the selectable columns from
// the catalog table, filtered on whitelisted columns only, and bounds the row
// count to TopK.
type Guard struct {
	Schema Schema
	TopK   int
}

func (g Guard) fail(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrComposition, fmt.Sprintf(format, args...))
}

// Check validates statement against the extracted slots and returns the
// executable form, with a LIMIT added or lowered to TopK.
func (g Guard) Check(statement string, slots AttributeSlots) (ComposedQuery, error) {
	q := strings.TrimSpace(statement)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	if q == "" {
		return "", g.fail("empty statement")
	}
	if Sanitize(q) != q || strings.Contains(q, "`") {
		return "", g.fail("statement still carries markdown")
	}

	tokens, err := lex(q)
	if err != nil {
		return "", g.fail("%v", err)
	}

	i, err := g.checkSelectList(tokens)
	if err != nil {
		return "", err
	}
	i, err = g.checkTable(tokens, i)
	if err != nil {
		return "", err
	}

	limit, err := g.checkFilters(tokens[i:], slots)
	if err != nil {
		return "", err
	}

	switch {
	case limit == nil:
		q = fmt.Sprintf("%s LIMIT %d", q, g.TopK)
	default:
		n, err := strconv.Atoi(limit.text)
		if err != nil || n < 0 {
			return "", g.fail("invalid LIMIT %s", limit.text)
		}
		if n > g.TopK {
			q = q[:limit.start] + strconv.Itoa(g.TopK) + q[limit.end:]
		}
	}

	return ComposedQuery(q), nil
}

// checkSelectList returns the index of the FROM token.
func (g Guard) checkSelectList(tokens []token) (int, error) {
	if len(tokens) == 0 || !tokens[0].is("SELECT") {
		return 0, g.fail("statement is not a SELECT")
	}

	i := 1
	if i < len(tokens) && tokens[i].is("DISTINCT") {
		i++
	}

	want := make(map[string]bool, len(g.Schema.Selectable))
	for _, c := range g.Schema.Selectable {
		want[c] = true
	}
	seen := make(map[string]bool)

	var item []token
	flush := func() error {
		name, ok := g.columnName(item)
		if !ok {
			return g.fail("select list may only name columns")
		}
		if !want[name] {
			return g.fail("column %s may not be selected", name)
		}
		if seen[name] {
			return g.fail("column %s selected twice", name)
		}
		seen[name] = true
		item = item[:0]

		return nil
	}

	for ; i < len(tokens); i++ {
		t := tokens[i]
		switch {
		case t.is("FROM"):
			if err := flush(); err != nil {
				return 0, err
			}
			if len(seen) != len(want) {
				return 0, g.fail("select list must be %s", strings.Join(g.Schema.Selectable, ", "))
			}

			return i, nil
		case t.punct(","):
			if err := flush(); err != nil {
				return 0, err
			}
		default:
			item = append(item, t)
		}
	}

	return 0, g.fail("statement has no FROM clause")
}

// columnName accepts col, "col" and table.col.
func (g Guard) columnName(item []token) (string, bool) {
	switch len(item) {
	case 1:
		return identName(item[0])
	case 3:
		table, ok := identName(item[0])
		if !ok || table != g.Schema.Table || !item[1].punct(".") {
			return "", false
		}
		return identName(item[2])
	}

	return "", false
}

func identName(t token) (string, bool) {
	switch t.kind {
	case tokWord:
		upper := strings.ToUpper(t.text)
		if sqlKeywords[upper] || forbiddenKeywords[upper] {
			return "", false
		}
		return strings.ToLower(t.text), true
	case tokQuoted:
		return t.text, true
	}

	return "", false
}

// checkTable validates the FROM target and returns the index after it.
func (g Guard) checkTable(tokens []token, from int) (int, error) {
	i := from + 1
	if i >= len(tokens) {
		return 0, g.fail("statement has no table")
	}

	name, ok := identName(tokens[i])
	if !ok || name != g.Schema.Table {
		return 0, g.fail("statement may only read %s", g.Schema.Table)
	}
	i++

	if i < len(tokens) && !tokens[i].is("WHERE") && !tokens[i].is("ORDER") && !tokens[i].is("LIMIT") {
		return 0, g.fail("unexpected %q after table name", tokens[i].text)
	}

	return i, nil
}

// checkFilters walks WHERE, ORDER BY and LIMIT and returns the LIMIT operand.
func (g Guard) checkFilters(tokens []token, slots AttributeSlots) (*token, error) {
	filterColumns := make(map[string]bool)
	for _, c := range g.Schema.FilterColumns() {
		filterColumns[c] = true
	}
	allColumns := g.Schema.AllowedColumns()
	categoryColumn := g.Schema.CategoryColumn()

	var limit *token
	region := ""

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		var next token
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}

		switch t.kind {
		case tokPunct:
			if t.text == ";" {
				return nil, g.fail("only one statement is allowed")
			}
			continue
		case tokString, tokNumber:
			continue
		}

		upper := strings.ToUpper(t.text)
		if t.kind == tokWord {
			if upper == "TOP" {
				return nil, g.fail("TOP is not PostgreSQL, use LIMIT")
			}
			if forbiddenKeywords[upper] {
				return nil, g.fail("statement may not use %s", upper)
			}
			if i > 0 && tokens[i-1].punct("::") {
				continue
			}
			if next.punct("(") {
				if !allowedFunctions[upper] {
					return nil, g.fail("function %s is not allowed", strings.ToLower(t.text))
				}
				continue
			}
			if sqlKeywords[upper] {
				switch upper {
				case "WHERE", "ORDER", "LIMIT":
					region = upper
				}
				if upper == "LIMIT" {
					if next.kind != tokNumber {
						return nil, g.fail("LIMIT needs a number")
					}
					if limit != nil {
						return nil, g.fail("LIMIT given twice")
					}
					operand := next
					limit = &operand
					i++
				}
				continue
			}
		}

		name, _ := identName(t)
		if next.punct(".") {
			if name != g.Schema.Table {
				return nil, g.fail("statement may only read %s", g.Schema.Table)
			}
			continue
		}

		switch region {
		case "WHERE":
			if !filterColumns[name] {
				return nil, g.fail("column %s may not be filtered on", name)
			}
		case "ORDER":
			if !allColumns[name] {
				return nil, g.fail("column %s is not known", name)
			}
		default:
			return nil, g.fail("unexpected %q", t.text)
		}

		if region == "WHERE" && name == categoryColumn {
			if err := g.checkCategory(tokens, i, slots); err != nil {
				return nil, err
			}
		}
	}

	return limit, nil
}

// checkCategory requires `category = '<value>'` with the extracted category.
func (g Guard) checkCategory(tokens []token, i int, slots AttributeSlots) error {
	if slots.Category == "" {
		return g.fail("category filtered although none was extracted")
	}
	if i+2 >= len(tokens) || !tokens[i+1].punct("=") || tokens[i+2].kind != tokString {
		return g.fail("category must be compared with = to a literal")
	}

	value := tokens[i+2].text
	if !IsCategory(value) {
		return g.fail("category %q is not one of the catalog categories", value)
	}
	if value != string(slots.Category) {
		return g.fail("category %q differs from the extracted %q", value, slots.Category)
	}

	return nil
}
