// Package policy ties together rule, condition, matcher, and
// policyconfig into the compiled, validated decision engine: Builder
// performs every construction-time check the engine requires, and the
// resulting Policy evaluates requests under deny-overrides semantics
// with no allocation on the hot path.
package policy

import (
	"github.com/latticeguard/authzcore/condition"
	"github.com/latticeguard/authzcore/matcher"
	"github.com/latticeguard/authzcore/policyconfig"
	"github.com/latticeguard/authzcore/policyerr"
	"github.com/latticeguard/authzcore/rule"
	"github.com/latticeguard/authzcore/stats"
)

// Request is one authorization request: a principal/action/resource
// triple plus a borrowed bag of context attributes. Every field is
// borrowed from the caller for the duration of one Evaluate call.
type Request struct {
	Principal string
	Action    string
	Resource  string
	Context   []condition.Attr
}

// Decision is the outcome of evaluating a Request against a Policy: an
// effect and the reason code of the rule that produced it.
type Decision struct {
	Effect rule.Effect
	Reason rule.ReasonCode
}

// Policy is an immutable, ordered list of rules compiled under a fixed
// policyconfig.Config. A Policy is safe to share and evaluate
// concurrently from any number of goroutines without coordination: it
// is never mutated after Builder.Build returns it.
type Policy struct {
	rules  []rule.Rule
	config policyconfig.Config
}

// Builder accumulates rules and a config, then validates everything at
// once in Build. Config and Rule both return the Builder so calls can
// be chained; Builder is not safe for concurrent use by multiple
// goroutines while it is being built.
type Builder struct {
	rules  []rule.Rule
	config policyconfig.Config
}

// NewBuilder returns a Builder seeded with the conservative default
// config; call Config before Build to override it.
func NewBuilder() *Builder {
	return &Builder{config: policyconfig.Default()}
}

// Config replaces the builder's config. Fields left at zero value are
// filled with their conservative defaults at Build time.
func (b *Builder) Config(c policyconfig.Config) *Builder {
	b.config = c
	return b
}

// Rule appends r to the builder's rule list, in the order Rule is
// called. Declaration order is preserved into the built Policy and
// determines evaluation order.
func (b *Builder) Rule(r rule.Rule) *Builder {
	b.rules = append(b.rules, r)
	return b
}

// Build validates every accumulated rule and the config against the
// compiled-in absolute ceilings, then returns an immutable Policy. No
// check is deferred to evaluation time: a Policy returned from Build is
// guaranteed safe to evaluate with zero allocation and no construction
// error surfacing later.
func (b *Builder) Build() (*Policy, error) {
	cfg := b.config.WithDefaults()
	if violations := cfg.CheckCeilings(); len(violations) > 0 {
		v := violations[0]
		return nil, &policyerr.ConfigExceedsCeiling{Field: v.Field, Max: v.Max, Actual: v.Actual}
	}

	if len(b.rules) > cfg.MaxRules {
		return nil, &policyerr.TooManyRules{Max: cfg.MaxRules, Actual: len(b.rules)}
	}

	for i := range b.rules {
		r := &b.rules[i]
		if err := validateTarget(r.Target, cfg); err != nil {
			return nil, err
		}
		if r.Condition != nil {
			if err := r.Condition.Validate(cfg.MaxConditionDepth, cfg.MaxStringLen); err != nil {
				return nil, err
			}
		}
	}

	rules := make([]rule.Rule, len(b.rules))
	copy(rules, b.rules)

	return &Policy{rules: rules, config: cfg}, nil
}

func validateTarget(t matcher.Target, cfg policyconfig.Config) error {
	for _, m := range [3]matcher.Matcher{t.Principal, t.Action, t.Resource} {
		switch m.Kind() {
		case matcher.KindOneOf:
			opts := m.Options()
			if len(opts) > cfg.MaxMatcherOptions {
				return &policyerr.MatcherListTooLong{Max: cfg.MaxMatcherOptions, Actual: len(opts)}
			}
			for _, opt := range opts {
				if len(opt) > cfg.MaxStringLen {
					return &policyerr.StringTooLong{Max: cfg.MaxStringLen, Actual: len(opt)}
				}
			}
		case matcher.KindExact:
			if len(m.ExactValue()) > cfg.MaxStringLen {
				return &policyerr.StringTooLong{Max: cfg.MaxStringLen, Actual: len(m.ExactValue())}
			}
		}
	}
	return nil
}

// Config returns the resolved config this Policy was built under.
func (p *Policy) Config() policyconfig.Config { return p.config }

// RuleCount returns the number of rules in this Policy.
func (p *Policy) RuleCount() int { return len(p.rules) }

// Evaluate runs req against p under deny-overrides semantics: rules are
// considered in declaration order; the first matching Deny wins
// immediately; otherwise the first matching Allow's reason is returned.
// If nothing matches, the decision is Deny with rule.NoMatchingRule.
//
// Evaluate performs no heap allocation as long as p was produced by
// Builder.Build (which guarantees every condition's depth is within the
// compiled-in absolute ceiling the evaluator's fixed-capacity stacks
// are sized for).
func (p *Policy) Evaluate(req Request) (Decision, error) {
	decision, _, err := p.evaluate(req)
	return decision, err
}

// EvaluateWithStats behaves like Evaluate but also reports how many
// rules were meaningfully considered, how deep the condition evaluator
// reached, and how many condition nodes were visited.
func (p *Policy) EvaluateWithStats(req Request) (Decision, stats.EvaluationStats, error) {
	return p.evaluate(req)
}

func (p *Policy) evaluate(req Request) (Decision, stats.EvaluationStats, error) {
	var st stats.EvaluationStats

	if len(req.Context) > p.config.MaxContextAttrs {
		return Decision{}, st, &policyerr.TooManyContextAttrs{Max: p.config.MaxContextAttrs, Actual: len(req.Context)}
	}

	var firstAllowReason rule.ReasonCode
	haveAllow := false

	for i := range p.rules {
		r := &p.rules[i]
		if !r.Target.Matches(req.Principal, req.Action, req.Resource) {
			continue
		}
		st.IncRulesChecked()

		if r.Condition != nil {
			held, conditionEvals, maxDepthReached, err := condition.EvaluateWithStats(r.Condition, req.Context)
			st.IncConditionEvals(conditionEvals)
			st.UpdateMaxDepth(maxDepthReached)
			if err != nil {
				return Decision{}, st, err
			}
			if !held {
				continue
			}
		}

		if r.Effect.IsDeny() {
			return Decision{Effect: rule.Deny, Reason: r.Reason}, st, nil
		}
		if !haveAllow {
			haveAllow = true
			firstAllowReason = r.Reason
		}
	}

	if haveAllow {
		return Decision{Effect: rule.Allow, Reason: firstAllowReason}, st, nil
	}
	return Decision{Effect: rule.Deny, Reason: rule.NoMatchingRule}, st, nil
}
