// Package condition implements the policy engine's tiny boolean
// expression language over request context attributes: True, False,
// Equals, NotEquals, And, Or, Not. The language is deliberately small —
// no arithmetic, no regex, no prefix matching — so that its three
// defining operations (Depth, Validate, Evaluate) can each be
// implemented without recursion, which in turn is what lets the
// compiled-policy evaluator give a hard, construction-time-checked bound
// on evaluation cost.
//
// Depth and Validate run at Policy construction time and may use
// ordinary growable slices as their explicit work stacks: the tree being
// inspected has not yet been proven bounded, so its depth could in
// principle be attacker-supplied and enormous, and only a heap-backed
// stack can walk it safely to find that out. Evaluate, by contrast, only
// ever runs against a Condition that already passed Validate as part of
// building a Policy, so it can use a small fixed-capacity work stack
// (see internal/estack) and perform no allocation at all.
package condition

import (
	"github.com/latticeguard/authzcore/internal/estack"
	"github.com/latticeguard/authzcore/policyconfig"
	"github.com/latticeguard/authzcore/policyerr"
	"github.com/latticeguard/authzcore/value"
)

// evalStackCapacity is the logical FixedStack capacity used by Evaluate.
// It is derived once, at package init, from the absolute ceiling on
// condition depth rather than from any one Policy's configured
// max_condition_depth: Evaluate only ever runs against a Condition that
// already passed Validate, so depth is bounded by the absolute ceiling
// in the worst case. And/Or nodes push three work items net of the one
// they pop, so the bound tracks "≈2·depth + small constant".
var evalStackCapacity = clampCapacity(2*policyconfig.AbsoluteMaxConditionDepth + 4)

func clampCapacity(n int) int {
	if n > estack.MaxCapacity {
		return estack.MaxCapacity
	}
	return n
}

// Kind identifies which variant a Condition node is.
type Kind uint8

const (
	KindTrue Kind = iota
	KindFalse
	KindEquals
	KindNotEquals
	KindAnd
	KindOr
	KindNot
)

// Condition is a node in a boolean expression tree. The zero Condition
// is not meaningful; construct one with True, False, Equals, NotEquals,
// And, Or, or Not. Subtrees are owned by their parent — the tree is
// strictly a tree, never a DAG, and cycles cannot be constructed through
// this package's API.
type Condition struct {
	kind  Kind
	attr  string
	val   value.Value
	left  *Condition // And/Or left operand, or Not's inner condition
	right *Condition // And/Or right operand; unused by Not
}

// True returns a Condition that always evaluates to true.
func True() Condition { return Condition{kind: KindTrue} }

// False returns a Condition that always evaluates to false.
func False() Condition { return Condition{kind: KindFalse} }

// Equals returns a Condition that is true when the named context
// attribute is present and structurally equal to val.
func Equals(attr string, val value.Value) Condition {
	return Condition{kind: KindEquals, attr: attr, val: val}
}

// NotEquals returns a Condition that is true when the named context
// attribute is absent, or present but not structurally equal to val.
func NotEquals(attr string, val value.Value) Condition {
	return Condition{kind: KindNotEquals, attr: attr, val: val}
}

// And returns a Condition that is true when both l and r are true. Both
// operands are always evaluated — this language has no short-circuit
// evaluation, since it is pure and total evaluation keeps the work-stack
// discipline and the condition_evals counter simple and deterministic.
func And(l, r Condition) Condition {
	left, right := l, r
	return Condition{kind: KindAnd, left: &left, right: &right}
}

// Or returns a Condition that is true when either l or r is true. Like
// And, both operands are always evaluated.
func Or(l, r Condition) Condition {
	left, right := l, r
	return Condition{kind: KindOr, left: &left, right: &right}
}

// Not returns a Condition that is true when inner is false.
func Not(inner Condition) Condition {
	left := inner
	return Condition{kind: KindNot, left: &left}
}

// Kind reports which variant this node is.
func (c *Condition) Kind() Kind { return c.kind }

// depthStackItem is an explicit work-stack entry for the non-recursive
// Depth walk. Exactly one of node or isApply is meaningful at a time:
// a "visit" item carries node; an "apply" item carries arity instead.
type depthStackItem struct {
	node    *Condition
	isApply bool
	arity   int
}

// Depth computes the height of the condition tree: a leaf has depth 1,
// and an internal node has depth 1 + the max depth of its children. The
// walk is iterative, using an explicit work stack and a results stack of
// partially-combined depths, so that no call-stack frame is consumed per
// tree level — an arbitrarily unbalanced, not-yet-validated tree cannot
// overflow the goroutine stack here.
func (c *Condition) Depth() int {
	stack := make([]depthStackItem, 0, 32)
	results := make([]int, 0, 16)
	stack = append(stack, depthStackItem{node: c})

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !item.isApply {
			switch item.node.kind {
			case KindTrue, KindFalse, KindEquals, KindNotEquals:
				results = append(results, 1)
			case KindNot:
				stack = append(stack, depthStackItem{isApply: true, arity: 1})
				stack = append(stack, depthStackItem{node: item.node.left})
			case KindAnd, KindOr:
				stack = append(stack, depthStackItem{isApply: true, arity: 2})
				stack = append(stack, depthStackItem{node: item.node.right})
				stack = append(stack, depthStackItem{node: item.node.left})
			}
			continue
		}

		if item.arity == 1 {
			d := popInt(&results)
			results = append(results, saturatingAddInt(d, 1))
		} else {
			d2 := popInt(&results)
			d1 := popInt(&results)
			results = append(results, saturatingAddInt(maxInt(d1, d2), 1))
		}
	}

	return popInt(&results)
}

// Validate checks that this condition's depth does not exceed maxDepth,
// then walks every node checking that every attribute name and every
// string Value literal has byte length at most maxStringLen. Both
// checks are non-recursive for the same reason Depth is.
func (c *Condition) Validate(maxDepth, maxStringLen int) error {
	actual := c.Depth()
	if actual > maxDepth {
		return &policyerr.ConditionTooDeep{Max: maxDepth, Actual: actual}
	}

	stack := make([]*Condition, 0, 32)
	stack = append(stack, c)

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node.kind {
		case KindTrue, KindFalse:
			// nothing to check
		case KindEquals, KindNotEquals:
			if err := validateStringLen(node.attr, maxStringLen); err != nil {
				return err
			}
			if s, ok := node.val.AsString(); ok {
				if err := validateStringLen(s, maxStringLen); err != nil {
					return err
				}
			}
		case KindNot:
			stack = append(stack, node.left)
		case KindAnd, KindOr:
			stack = append(stack, node.right, node.left)
		}
	}
	return nil
}

func validateStringLen(s string, maxLen int) error {
	if len(s) > maxLen {
		return &policyerr.StringTooLong{Max: maxLen, Actual: len(s)}
	}
	return nil
}

// Attr is a single (name, value) context attribute, borrowed from the
// caller for the duration of one Evaluate call.
type Attr struct {
	Name  string
	Value value.Value
}

// evalStackItem is a work-stack entry for the non-recursive Evaluate
// walk: either "evaluate this node" or "apply this already-evaluated
// combinator to the top of the boolean results stack".
type evalStackItem struct {
	node    *Condition
	isApply bool
	apply   applyKind
}

type applyKind uint8

const (
	applyNot applyKind = iota
	applyAnd
	applyOr
)

// Evaluate runs this condition against context, a borrowed slice of
// attribute (name, value) pairs, and reports the result. The internal
// work stacks are fixed-capacity (see internal/estack) and perform no
// allocation; Evaluate is safe to call from a latency-sensitive hot path
// as long as c already passed Validate, which is what Policy.Builder.Build
// guarantees for every rule condition in a built Policy.
//
// Evaluation is total: both operands of And/Or are always evaluated,
// even when the left operand alone already determines the result. The
// language has no side effects, so this costs nothing observable and
// keeps the per-node visit count (used by EvaluationStats) deterministic.
//
// Missing attributes are fail-closed: Equals treats a missing attribute
// as not equal (false); NotEquals treats it as not equal to anything in
// particular, i.e. true. A Value of one kind is never equal to a context
// Value of a different kind — this is a deliberate "silently unequal"
// choice, not an error, so that untyped context attributes never abort
// a decision.
func Evaluate(c *Condition, context []Attr) (bool, error) {
	result, _, _, err := evaluateInternal(c, context)
	return result, err
}

// EvaluateWithStats behaves like Evaluate but also reports the number of
// condition nodes visited and the maximum work-stack depth observed,
// the two condition-level counters EvaluationStats surfaces.
func EvaluateWithStats(c *Condition, context []Attr) (result bool, conditionEvals int, maxDepthReached int, err error) {
	return evaluateInternal(c, context)
}

func evaluateInternal(c *Condition, context []Attr) (bool, int, int, error) {
	capacity := evalStackCapacity
	work := estack.New[evalStackItem](capacity)
	results := estack.New[bool](capacity)
	conditionEvals := 0
	maxDepthReached := 0

	if !work.Push(evalStackItem{node: c}) {
		return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
	}
	if d := work.Len(); d > maxDepthReached {
		maxDepthReached = d
	}

	pushWork := func(item evalStackItem) bool {
		if !work.Push(item) {
			return false
		}
		if d := work.Len(); d > maxDepthReached {
			maxDepthReached = d
		}
		return true
	}

	for !work.IsEmpty() {
		item, ok := work.Pop()
		if !ok {
			return false, conditionEvals, maxDepthReached, &policyerr.InternalError{Reason: "work stack pop on claimed non-empty stack"}
		}
		if !item.isApply {
			conditionEvals++
		}

		if !item.isApply {
			switch item.node.kind {
			case KindTrue:
				if !results.Push(true) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
			case KindFalse:
				if !results.Push(false) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
			case KindEquals:
				v, found := lookupAttr(context, item.node.attr)
				result := found && v.Equal(item.node.val)
				if !results.Push(result) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
			case KindNotEquals:
				v, found := lookupAttr(context, item.node.attr)
				result := !found || !v.Equal(item.node.val)
				if !results.Push(result) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
			case KindNot:
				if !pushWork(evalStackItem{isApply: true, apply: applyNot}) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
				if !pushWork(evalStackItem{node: item.node.left}) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
			case KindAnd:
				if !pushWork(evalStackItem{isApply: true, apply: applyAnd}) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
				if !pushWork(evalStackItem{node: item.node.right}) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
				if !pushWork(evalStackItem{node: item.node.left}) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
			case KindOr:
				if !pushWork(evalStackItem{isApply: true, apply: applyOr}) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
				if !pushWork(evalStackItem{node: item.node.right}) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
				if !pushWork(evalStackItem{node: item.node.left}) {
					return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
				}
			}
			continue
		}

		switch item.apply {
		case applyNot:
			v, ok := results.Pop()
			if !ok {
				return false, conditionEvals, maxDepthReached, &policyerr.InternalError{Reason: "result stack underflow applying Not"}
			}
			if !results.Push(!v) {
				return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
			}
		case applyAnd:
			b, ok1 := results.Pop()
			a, ok2 := results.Pop()
			if !ok1 || !ok2 {
				return false, conditionEvals, maxDepthReached, &policyerr.InternalError{Reason: "result stack underflow applying And"}
			}
			if !results.Push(a && b) {
				return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
			}
		case applyOr:
			b, ok1 := results.Pop()
			a, ok2 := results.Pop()
			if !ok1 || !ok2 {
				return false, conditionEvals, maxDepthReached, &policyerr.InternalError{Reason: "result stack underflow applying Or"}
			}
			if !results.Push(a || b) {
				return false, conditionEvals, maxDepthReached, &policyerr.EvalStackOverflow{Max: capacity}
			}
		}
	}

	final, ok := results.Pop()
	if !ok {
		return false, conditionEvals, maxDepthReached, &policyerr.InternalError{Reason: "result stack empty at end of evaluation"}
	}
	return final, conditionEvals, maxDepthReached, nil
}

// Evaluate is a convenience method wrapping the package-level Evaluate
// function.
func (c *Condition) Evaluate(context []Attr) (bool, error) {
	return Evaluate(c, context)
}

func lookupAttr(context []Attr, name string) (value.Value, bool) {
	for _, a := range context {
		if a.Name == name {
			return a.Value, true
		}
	}
	return value.Value{}, false
}

// Discard iteratively detaches and drops this condition's owned
// children, rather than relying on Go's garbage collector to trace a
// potentially very deep (e.g. rejected, pre-validation) tree on its own
// time. It mirrors the non-recursive teardown the engine this was
// distilled from uses, and is useful when a caller wants to eagerly
// release a Condition that failed Validate without waiting on GC to
// walk it. After Discard, c is the True leaf.
func Discard(c *Condition) {
	var stack []*Condition
	switch c.kind {
	case KindAnd, KindOr:
		stack = append(stack, c.left, c.right)
	case KindNot:
		stack = append(stack, c.left)
	}
	c.kind = KindTrue
	c.left, c.right = nil, nil

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node.kind {
		case KindAnd, KindOr:
			stack = append(stack, node.left, node.right)
		case KindNot:
			stack = append(stack, node.left)
		}
		node.kind = KindTrue
		node.left, node.right = nil, nil
	}
}

func popInt(s *[]int) int {
	n := len(*s)
	if n == 0 {
		return 0
	}
	v := (*s)[n-1]
	*s = (*s)[:n-1]
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func saturatingAddInt(a, b int) int {
	sum := a + b
	if sum < a {
		return int(^uint(0) >> 1) // math.MaxInt, avoided importing math for one constant
	}
	return sum
}
