package chat

import (
	"fmt"
	"regexp"
	"strings"
)

// forbidden lists statement keywords and prefixes that must never appear in
// generated SQL, matched on word boundaries case-insensitively.
var forbidden = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|truncate|alter|create|grant|revoke|pg_\w*)\b`)

var limitClause = regexp.MustCompile(`(?i)\blimit\s+\d+`)

// defaultRowLimit caps result sets when the model omits a LIMIT.
const defaultRowLimit = 10

// SanitizeSQL strips markdown fencing from model output and verifies the
// statement is a single read-only SELECT. A LIMIT clause is appended when
// the statement has none.
func SanitizeSQL(raw string) (string, error) {
	sql := stripFences(raw)
	sql = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	if sql == "" {
		return "", fmt.Errorf("empty sql statement")
	}

	if !strings.HasPrefix(strings.ToUpper(sql), "SELECT") {
		return "", fmt.Errorf("only SELECT statements are allowed")
	}
	if strings.Contains(sql, ";") {
		return "", fmt.Errorf("multiple statements are not allowed")
	}
	if match := forbidden.FindString(sql); match != "" {
		return "", fmt.Errorf("forbidden keyword %q in statement", strings.ToUpper(match))
	}

	if !limitClause.MatchString(sql) {
		sql = fmt.Sprintf("%s LIMIT %d", sql, defaultRowLimit)
	}
	return sql, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.ContainsAny(s[:idx], " \t") {
		// First line is a language tag such as "sql".
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
