package condition

import (
	"errors"
	"testing"

	"github.com/latticeguard/authzcore/policyerr"
	"github.com/latticeguard/authzcore/value"
)

func mustEval(t *testing.T, c Condition, ctx []Attr) bool {
	t.Helper()
	result, err := Evaluate(&c, ctx)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	return result
}

func TestTrueFalse(t *testing.T) {
	if !mustEval(t, True(), nil) {
		t.Error("True() should evaluate true")
	}
	if mustEval(t, False(), nil) {
		t.Error("False() should evaluate false")
	}
}

func TestEqualsPresentMatching(t *testing.T) {
	c := Equals("role", value.String("admin"))
	ctx := []Attr{{Name: "role", Value: value.String("admin")}}
	if !mustEval(t, c, ctx) {
		t.Error("Equals should be true when attribute present and matching")
	}
}

func TestEqualsPresentNonMatching(t *testing.T) {
	c := Equals("role", value.String("admin"))
	ctx := []Attr{{Name: "role", Value: value.String("guest")}}
	if mustEval(t, c, ctx) {
		t.Error("Equals should be false when attribute present but different")
	}
}

func TestEqualsMissingAttrFailsClosed(t *testing.T) {
	c := Equals("role", value.String("admin"))
	if mustEval(t, c, nil) {
		t.Error("Equals on a missing attribute must be false (fail-closed)")
	}
}

func TestNotEqualsMissingAttrIsTrue(t *testing.T) {
	c := NotEquals("role", value.String("admin"))
	if !mustEval(t, c, nil) {
		t.Error("NotEquals on a missing attribute must be true")
	}
}

func TestNotEqualsPresentDifferent(t *testing.T) {
	c := NotEquals("role", value.String("admin"))
	ctx := []Attr{{Name: "role", Value: value.String("guest")}}
	if !mustEval(t, c, ctx) {
		t.Error("NotEquals should be true when values differ")
	}
}

func TestEqualsCrossTypeNeverEqual(t *testing.T) {
	c := Equals("count", value.Int(5))
	ctx := []Attr{{Name: "count", Value: value.String("5")}}
	if mustEval(t, c, ctx) {
		t.Error("a string Value must never equal an Int Value, even with matching text")
	}
}

func TestAndBothTrue(t *testing.T) {
	c := And(True(), True())
	if !mustEval(t, c, nil) {
		t.Error("And(True, True) should be true")
	}
}

func TestAndOneFalse(t *testing.T) {
	if mustEval(t, And(True(), False()), nil) {
		t.Error("And(True, False) should be false")
	}
	if mustEval(t, And(False(), True()), nil) {
		t.Error("And(False, True) should be false")
	}
}

func TestOrOneTrue(t *testing.T) {
	if !mustEval(t, Or(False(), True()), nil) {
		t.Error("Or(False, True) should be true")
	}
}

func TestOrBothFalse(t *testing.T) {
	if mustEval(t, Or(False(), False()), nil) {
		t.Error("Or(False, False) should be false")
	}
}

func TestNot(t *testing.T) {
	if !mustEval(t, Not(False()), nil) {
		t.Error("Not(False) should be true")
	}
	if mustEval(t, Not(True()), nil) {
		t.Error("Not(True) should be false")
	}
}

func TestComplexCondition(t *testing.T) {
	// (role == admin OR role == owner) AND NOT (env == sandbox)
	c := And(
		Or(Equals("role", value.String("admin")), Equals("role", value.String("owner"))),
		Not(Equals("env", value.String("sandbox"))),
	)

	cases := []struct {
		name string
		ctx  []Attr
		want bool
	}{
		{"admin in prod", []Attr{{"role", value.String("admin")}, {"env", value.String("prod")}}, true},
		{"owner in prod", []Attr{{"role", value.String("owner")}, {"env", value.String("prod")}}, true},
		{"admin in sandbox", []Attr{{"role", value.String("admin")}, {"env", value.String("sandbox")}}, false},
		{"guest in prod", []Attr{{"role", value.String("guest")}, {"env", value.String("prod")}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mustEval(t, c, tc.ctx); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDepthLeaf(t *testing.T) {
	c := True()
	if d := c.Depth(); d != 1 {
		t.Errorf("Depth() of a leaf = %d, want 1", d)
	}
}

func TestDepthNested(t *testing.T) {
	// Not(And(True, Or(True, False))) -> depth 4
	c := Not(And(True(), Or(True(), False())))
	if d := c.Depth(); d != 4 {
		t.Errorf("Depth() = %d, want 4", d)
	}
}

func TestDepthUnbalanced(t *testing.T) {
	c := And(True(), Not(Not(Not(True()))))
	if d := c.Depth(); d != 5 {
		t.Errorf("Depth() = %d, want 5", d)
	}
}

func TestValidateWithinDepth(t *testing.T) {
	c := And(True(), False())
	if err := c.Validate(8, 256); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateExceedsDepth(t *testing.T) {
	c := Not(Not(Not(True())))
	err := c.Validate(2, 256)
	var tooDeep *policyerr.ConditionTooDeep
	if !errors.As(err, &tooDeep) {
		t.Fatalf("Validate() = %v, want *ConditionTooDeep", err)
	}
	if tooDeep.Max != 2 || tooDeep.Actual != 4 {
		t.Errorf("ConditionTooDeep = %+v, want Max=2 Actual=4", tooDeep)
	}
}

func TestValidateStringTooLong(t *testing.T) {
	c := Equals("role", value.String("this-is-a-very-long-value"))
	err := c.Validate(8, 5)
	var tooLong *policyerr.StringTooLong
	if !errors.As(err, &tooLong) {
		t.Fatalf("Validate() = %v, want *StringTooLong", err)
	}
}

func TestValidateAttrNameTooLong(t *testing.T) {
	c := Equals("a-rather-long-attribute-name", value.Bool(true))
	err := c.Validate(8, 5)
	var tooLong *policyerr.StringTooLong
	if !errors.As(err, &tooLong) {
		t.Fatalf("Validate() = %v, want *StringTooLong for attr name", err)
	}
}

func TestEvaluateWithStatsCountsNodes(t *testing.T) {
	c := And(Equals("a", value.Bool(true)), Or(True(), False()))
	result, conditionEvals, maxDepthReached, err := EvaluateWithStats(&c, []Attr{{"a", value.Bool(true)}})
	if err != nil {
		t.Fatalf("EvaluateWithStats returned error: %v", err)
	}
	if !result {
		t.Error("expected true result")
	}
	// 5 leaf/internal nodes visited: And, Equals, Or, True, False.
	if conditionEvals != 5 {
		t.Errorf("conditionEvals = %d, want 5", conditionEvals)
	}
	if maxDepthReached == 0 {
		t.Error("maxDepthReached should be greater than zero")
	}
}

func TestEvaluateMethod(t *testing.T) {
	c := True()
	result, err := c.Evaluate(nil)
	if err != nil || !result {
		t.Errorf("c.Evaluate(nil) = (%v, %v), want (true, nil)", result, err)
	}
}

func TestDiscardLeavesTrueLeaf(t *testing.T) {
	c := And(Or(True(), False()), Not(True()))
	Discard(&c)
	if c.Kind() != KindTrue {
		t.Errorf("Kind() after Discard = %v, want KindTrue", c.Kind())
	}
	if c.left != nil || c.right != nil {
		t.Error("Discard should nil out children")
	}
}

func TestDiscardOnLeafBecomesTrue(t *testing.T) {
	c := False()
	Discard(&c)
	if c.Kind() != KindTrue {
		t.Errorf("Kind() after Discard = %v, want KindTrue", c.Kind())
	}
}
