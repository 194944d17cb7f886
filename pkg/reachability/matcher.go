package reachability

import (
	"strings"

	"github.com/715d/reachmark/pkg/dexmodel"
)

// Keep-rule class patterns arrive in external dotted form. The evaluator
// only consults concrete (wildcard-free) class and interface patterns;
// wildcard patterns and member-qualified rules are a documented
// limitation of this version, not a defect.

// HasWildcard reports whether a dotted pattern contains wildcard tokens.
func HasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// TranslatePattern converts a dotted class-name pattern into the internal
// descriptor form the matcher compares against.
func TranslatePattern(pattern string) string {
	return dexmodel.DotToDescriptor(pattern)
}

// TypeMatches reports whether a translated, wildcard-free pattern matches
// a candidate class descriptor. For concrete patterns a match is exact
// descriptor equality; the length check is an early reject, not a
// semantic rule.
func TypeMatches(pattern, candidate string) bool {
	if len(pattern) != len(candidate) {
		return false
	}
	return pattern == candidate
}
