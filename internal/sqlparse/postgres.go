package sqlparse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	datetimeRe = regexp.MustCompile(`(?i)\bDATETIME\b`)
	dateFnRe   = regexp.MustCompile(`(?i)\bdate\s*\(`)
	trailingRe = regexp.MustCompile(`;?\s*$`)
)

// Postgres renders query for the remote relational store: '?' markers
// become $1..$n in encounter order, DATETIME type tokens become TIMESTAMP,
// bare date(expr) calls become DATE(expr), and INSERT statements gain a
// RETURNING id clause so the generated key comes back in the same round
// trip. The statement is parsed first, so unsupported shapes and
// placeholder/parameter mismatches fail before any text is produced.
func Postgres(query string, params []any) (string, error) {
	q, err := Parse(query)
	if err != nil {
		return "", err
	}
	if err := CheckParams(q, params); err != nil {
		return "", err
	}

	out := datetimeRe.ReplaceAllString(query, "TIMESTAMP")
	out = dateFnRe.ReplaceAllString(out, "DATE(")

	var b strings.Builder
	n := 0
	for i := 0; i < len(out); i++ {
		if out[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteByte(out[i])
		}
	}
	out = b.String()

	if _, ok := q.(*Insert); ok && !strings.Contains(strings.ToUpper(out), "RETURNING") {
		out = trailingRe.ReplaceAllString(out, "")
		out += " RETURNING id"
	}

	return out, nil
}
