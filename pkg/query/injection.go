package query

import (
	"regexp"

	"github.com/jackc/pgx/v5"
)

// sqlInjectionPatterns flag quotes, comments, "=... ;" sequences, "'or" and
// "'union", raw or percent-encoded.
var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(%27)|(')|(--)|(%23)|(#)`),
	regexp.MustCompile(`(?i)((%3D)|(=))[^\n]*((%27)|(')|(--)|(%3B)|(;))`),
	regexp.MustCompile(`(?i)w*((%27)|('))((%6F)|o|(%4F))((%72)|r|(%52))`),
	regexp.MustCompile(`(?i)((%27)|('))union`),
}

// identifierPattern accepts plain and dotted identifiers (embedded columns,
// relation-qualified columns).
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// CheckField rejects field names that could alter the statement they are
// interpolated into. Identifiers cannot be bound as parameters, so every raw
// field name goes through here before it reaches a fragment.
func CheckField(field string) error {
	for _, re := range sqlInjectionPatterns {
		if re.MatchString(field) {
			return &ValidationError{Message: "SQL injection detected: \"" + field + "\""}
		}
	}
	if !identifierPattern.MatchString(field) {
		return &ValidationError{Field: field, Message: "not a valid identifier"}
	}
	return nil
}

// Column returns the quoted reference to field qualified by alias. The field
// is quoted as a single identifier, so an embedded column's dotted path stays
// one name.
func Column(alias, field string) string {
	if alias == "" {
		return pgx.Identifier{field}.Sanitize()
	}
	return pgx.Identifier{alias, field}.Sanitize()
}
