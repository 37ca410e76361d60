package store

import (
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/veloclimat/veloclimat/internal/errs"
)

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ParseIdent validates a table or column name, optionally schema qualified.
// Only plain identifiers are accepted: no quoting, no expressions.
func ParseIdent(name string) (pgx.Identifier, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, errs.Invalid("identifier", "name", name)
	}
	for _, p := range parts {
		if !identPart.MatchString(p) {
			return nil, errs.Invalid("identifier", "name", name)
		}
	}
	return pgx.Identifier(parts), nil
}

// parseColumn validates an unqualified column name.
func parseColumn(name string) (pgx.Identifier, error) {
	if !identPart.MatchString(name) {
		return nil, errs.Invalid("identifier", "column", name)
	}
	return pgx.Identifier{name}, nil
}

// quote validates then quotes names. It fails on the first invalid name.
func quote(names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		id, err := ParseIdent(n)
		if err != nil {
			return nil, err
		}
		out[i] = id.Sanitize()
	}
	return out, nil
}

// quoteColumns validates then quotes unqualified column names.
func quoteColumns(names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		id, err := parseColumn(n)
		if err != nil {
			return nil, err
		}
		out[i] = id.Sanitize()
	}
	return out, nil
}

// indexName derives a deterministic index name from a table and a suffix.
func indexName(table pgx.Identifier, suffix string) string {
	name := "idx_" + table[len(table)-1] + "_" + suffix
	if len(name) > 63 {
		name = name[:63]
	}
	return pgx.Identifier{name}.Sanitize()
}
