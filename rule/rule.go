// Package rule defines the unit a Policy is built from: an effect, the
// Target it applies to, an optional Condition gating it further, and the
// reason code it contributes to a Decision. Rule has no behavior of its
// own beyond being a record — matching and condition evaluation live in
// matcher and condition, and the deny-overrides combining logic lives in
// policy.
package rule

import (
	"github.com/latticeguard/authzcore/condition"
	"github.com/latticeguard/authzcore/matcher"
)

// Effect is the verdict kind a Rule contributes.
type Effect uint8

const (
	// Allow grants a request once matched (subject to deny-overrides at
	// the policy level).
	Allow Effect = iota
	// Deny refuses a request once matched, overriding any Allow.
	Deny
)

// IsAllow reports whether e is Allow.
func (e Effect) IsAllow() bool { return e == Allow }

// IsDeny reports whether e is Deny.
func (e Effect) IsDeny() bool { return e == Deny }

func (e Effect) String() string {
	switch e {
	case Allow:
		return "Allow"
	case Deny:
		return "Deny"
	default:
		return "Unknown"
	}
}

// ReasonCode is a caller-assigned, opaque 32-bit identifier attached to a
// Rule and carried into the Decision it produces. The engine never
// interprets a reason code beyond comparing it to NoMatchingRule.
type ReasonCode uint32

// NoMatchingRule is the reserved reason code returned when a Policy
// evaluation matches no rule. No Rule should be constructed with this
// reason; doing so is not rejected at build time, but its Decision would
// be indistinguishable from "no rule matched."
const NoMatchingRule ReasonCode = 0

// Rule is a single entry in a Policy: when Target matches a request and
// Condition (if present) evaluates true, Effect applies and Reason is
// attached to the resulting Decision.
type Rule struct {
	Effect    Effect
	Target    matcher.Target
	Condition *condition.Condition
	Reason    ReasonCode
}

// New constructs a Rule from its parts. cond may be nil for a rule with
// no condition beyond its target match.
func New(effect Effect, target matcher.Target, cond *condition.Condition, reason ReasonCode) Rule {
	return Rule{Effect: effect, Target: target, Condition: cond, Reason: reason}
}

// AllowRule constructs an unconditional-on-condition Allow rule for the
// given target and reason.
func AllowRule(target matcher.Target, reason ReasonCode) Rule {
	return Rule{Effect: Allow, Target: target, Reason: reason}
}

// DenyRule constructs an unconditional-on-condition Deny rule for the
// given target and reason.
func DenyRule(target matcher.Target, reason ReasonCode) Rule {
	return Rule{Effect: Deny, Target: target, Reason: reason}
}

// WithCondition returns a copy of r with its Condition set to cond.
func (r Rule) WithCondition(cond *condition.Condition) Rule {
	r.Condition = cond
	return r
}

// Matches reports whether r's target applies to the given principal,
// action, and resource. It does not evaluate r's condition, if any —
// callers combine this with a condition.Evaluate call themselves so that
// a stats-tracking evaluator can distinguish "target matched" from
// "condition held."
func (r Rule) Matches(principal, action, resource string) bool {
	return r.Target.Matches(principal, action, resource)
}
