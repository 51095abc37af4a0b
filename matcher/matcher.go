// Package matcher implements the single-field matchers and the
// principal/action/resource Target triple that gates which requests a
// rule considers. Every operation here is a pure function over borrowed
// strings: no allocation, no prefix or glob semantics. Prefix-style
// matching belongs in a Condition, not in a Matcher — keeping the
// matcher surface to Any/Exact/OneOf is a deliberate way to avoid glob
// and regex footguns in the target layer.
package matcher

// Kind identifies which variant a Matcher holds.
type Kind uint8

const (
	KindAny Kind = iota
	KindExact
	KindOneOf
)

// Matcher matches a single request field (principal, action, or
// resource) against a configured rule.
type Matcher struct {
	kind    Kind
	exact   string
	options []string
}

// Any returns a Matcher that matches every value.
func Any() Matcher { return Matcher{kind: KindAny} }

// Exact returns a Matcher that matches only the given string, compared
// byte-for-byte (case-sensitive).
func Exact(s string) Matcher { return Matcher{kind: KindExact, exact: s} }

// OneOf returns a Matcher that matches any of the given strings. The
// list is walked linearly on every match call; this is intentional since
// policyconfig.Config bounds its length to a small constant.
func OneOf(options []string) Matcher { return Matcher{kind: KindOneOf, options: options} }

// Kind reports which variant this Matcher holds.
func (m Matcher) Kind() Kind { return m.kind }

// Options returns the OneOf option list, or nil for other variants.
// Callers use this for construction-time validation (option count,
// per-string length); it is not used on the evaluate hot path.
func (m Matcher) Options() []string { return m.options }

// ExactValue returns the Exact comparison string, or "" for other
// variants.
func (m Matcher) ExactValue() string { return m.exact }

// Matches reports whether value satisfies this matcher.
func (m Matcher) Matches(value string) bool {
	switch m.kind {
	case KindAny:
		return true
	case KindExact:
		return value == m.exact
	case KindOneOf:
		for _, opt := range m.options {
			if opt == value {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Target is the triple of matchers a Rule uses to decide whether it
// applies to a given request.
type Target struct {
	Principal Matcher
	Action    Matcher
	Resource  Matcher
}

// AnyTarget returns a Target that matches every request.
func AnyTarget() Target {
	return Target{Principal: Any(), Action: Any(), Resource: Any()}
}

// Matches reports whether the target applies to the given principal,
// action, and resource. All three matchers must agree.
func (t Target) Matches(principal, action, resource string) bool {
	return t.Principal.Matches(principal) &&
		t.Action.Matches(action) &&
		t.Resource.Matches(resource)
}
