package ir

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// WildcardSigil prefixes every wildcard token.
const WildcardSigil = "?"

var uuidShape = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsWildcard reports whether s is a wildcard token ("?" followed by a name).
func IsWildcard(s string) bool {
	return len(s) > len(WildcardSigil) && strings.HasPrefix(s, WildcardSigil)
}

// IsUUID reports whether s has the canonical hyphenated 8-4-4-4-12 shape.
// uuid.Parse alone also accepts urn: and braced forms, which are not references.
func IsUUID(s string) bool {
	if !uuidShape.MatchString(s) {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsQuoted reports whether s is wrapped in double quotes.
func IsQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}

// Quote wraps s in double quotes.
func Quote(s string) string {
	return `"` + s + `"`
}

// QuoteIfRef quotes a literal that ParseRef would not read back as itself:
// wildcard and uuid shapes, and strings that are already quoted.
func QuoteIfRef(s string) string {
	if IsWildcard(s) || IsUUID(s) || IsQuoted(s) {
		return Quote(s)
	}
	return s
}

// Unquote strips one pair of surrounding double quotes.
func Unquote(s string) string {
	if IsQuoted(s) {
		return s[1 : len(s)-1]
	}
	return s
}

// GroupNameFor derives a group name from the wildcard that created it.
func GroupNameFor(token string) string {
	return strings.TrimPrefix(token, WildcardSigil)
}
