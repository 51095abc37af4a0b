// Package stats defines EvaluationStats, the small set of saturating
// counters Policy.EvaluateWithStats reports alongside a Decision: how
// many rules were meaningfully considered, how deep the condition
// evaluator's work stack reached, and how many condition nodes were
// visited. Every counter saturates at its type's maximum rather than
// wrapping, so a caller comparing stats across calls never sees a
// decrease due to overflow.
package stats

import "math"

// EvaluationStats reports how close one Policy.EvaluateWithStats call
// came to its configured limits.
type EvaluationStats struct {
	RulesChecked    uint16
	MaxDepthReached uint8
	ConditionEvals  uint16
}

// IncRulesChecked increments RulesChecked by one, saturating at the
// maximum uint16 value instead of wrapping to zero.
func (s *EvaluationStats) IncRulesChecked() {
	if s.RulesChecked < math.MaxUint16 {
		s.RulesChecked++
	}
}

// IncConditionEvals increments ConditionEvals by n, saturating at the
// maximum uint16 value.
func (s *EvaluationStats) IncConditionEvals(n int) {
	if n <= 0 {
		return
	}
	sum := int(s.ConditionEvals) + n
	if sum > math.MaxUint16 {
		s.ConditionEvals = math.MaxUint16
		return
	}
	s.ConditionEvals = uint16(sum)
}

// UpdateMaxDepth raises MaxDepthReached to depth if depth is larger,
// saturating at the maximum uint8 value rather than truncating.
func (s *EvaluationStats) UpdateMaxDepth(depth int) {
	if depth < 0 {
		return
	}
	if depth > math.MaxUint8 {
		depth = math.MaxUint8
	}
	if uint8(depth) > s.MaxDepthReached {
		s.MaxDepthReached = uint8(depth)
	}
}
