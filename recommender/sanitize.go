package recommender

import (
	"regexp"
	"strings"
)

const fence = "```"

// languageTags are the labels models put after an opening fence or on a line of
// their own before a statement.
var languageTags = []string{
	"postgresql", "postgres", "pgsql", "psql", "plsql", "sqlite3", "sqlite", "mysql", "mariadb",
	"mssql", "tsql", "t-sql", "sql", "json",
}

// fenceLabel is a single word on the opening fence line, e.g. ```sqlite.
var fenceLabel = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_+.-]*$`)

// answerPrefixes are the leads some prompts teach models to write.
var answerPrefixes = []string{"SQLQuery:", "SQL Query:", "SQL:", "Query:"}

// Sanitize reduces a model response to the bare statement: it keeps the body of
// the first fenced block if there is one and drops language tags and answer
// prefixes. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)

	if start := strings.Index(s, fence); start >= 0 {
		body := s[start+len(fence):]
		if end := strings.Index(body, fence); end >= 0 {
			body = body[:end]
		}
		s = stripLanguageTag(stripFenceLabel(body))
	}

	for {
		before := s
		s = strings.TrimSpace(strings.Trim(s, "`"))
		s = stripAnswerPrefix(s)
		s = stripLanguageTag(s)
		if s == before {
			return s
		}
	}
}

// stripFenceLabel drops whatever label follows the opening fence when the
// statement starts on the next line.
func stripFenceLabel(body string) string {
	line, rest, found := strings.Cut(body, "\n")
	if !found {
		return body
	}
	label := strings.TrimSpace(line)
	if !fenceLabel.MatchString(label) || strings.EqualFold(label, "select") || strings.EqualFold(label, "with") {
		return body
	}

	return rest
}

func stripLanguageTag(s string) string {
	s = strings.TrimLeft(s, " \t")
	lower := strings.ToLower(s)
	for _, tag := range languageTags {
		if !strings.HasPrefix(lower, tag) {
			continue
		}
		rest := s[len(tag):]
		// the tag must stand alone: "sql\nSELECT" or "sql SELECT", never "sqlx"
		if rest == "" || rest[0] == '\n' || rest[0] == '\r' || rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest)
		}
	}

	return strings.TrimSpace(s)
}

func stripAnswerPrefix(s string) string {
	for _, prefix := range answerPrefixes {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}

	return s
}
