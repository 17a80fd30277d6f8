package outbox

import (
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseIdentifier accepts "table" or "schema.table".
func ParseIdentifier(s string) (pgx.Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalidConfig("table name is empty")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, invalidConfig("table %q has more than two parts", s)
	}
	ident := make(pgx.Identifier, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if !identPart.MatchString(p) {
			return nil, invalidConfig("table %q: bad part %q", s, p)
		}
		ident[i] = p
	}
	return ident, nil
}

// TableLabel is the dotted form used in logs and metric labels.
func TableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}
