// Package condition evaluates trigger conditions against business
// events. Evaluation is pure: no I/O, no clock.
package condition

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldline/automation/pkg/core"
)

// Evaluate reports whether every condition passes for the event.
// Conditions are ANDed; an empty slice always matches.
func Evaluate(conds []core.TriggerCondition, event core.BusinessEvent) bool {
	for _, c := range conds {
		if !evaluateOne(c, event) {
			return false
		}
	}
	return true
}

func evaluateOne(c core.TriggerCondition, event core.BusinessEvent) bool {
	actual, ok := event.Field(c.Field)
	if !ok {
		// A missing field only satisfies negative operators.
		return c.Operator == core.OpNotEquals || c.Operator == core.OpNotIn
	}

	var expected any
	if len(c.Value) > 0 {
		if err := json.Unmarshal(c.Value, &expected); err != nil {
			// Unparseable stored value: treat as the raw string.
			expected = string(c.Value)
		}
	}

	switch c.Operator {
	case core.OpEquals:
		return looseEqual(actual, expected)
	case core.OpNotEquals:
		return !looseEqual(actual, expected)
	case core.OpContains:
		return contains(actual, expected)
	case core.OpGreaterThan:
		a, aok := asNumber(actual)
		b, bok := asNumber(expected)
		return aok && bok && a > b
	case core.OpLessThan:
		a, aok := asNumber(actual)
		b, bok := asNumber(expected)
		return aok && bok && a < b
	case core.OpIn:
		return inList(actual, expected)
	case core.OpNotIn:
		return !inList(actual, expected)
	}
	return false
}

// looseEqual compares scalars across JSON's type blur: 3 == 3.0,
// "3" != 3, everything else by stringified equality of like kinds.
func looseEqual(a, b any) bool {
	if an, aok := asNumber(a); aok {
		if bn, bok := asNumber(b); bok {
			return an == bn
		}
		return false
	}
	if _, bok := asNumber(b); bok {
		return false
	}
	return stringify(a) == stringify(b)
}

// contains does a substring test for strings and a membership test
// when the event field is an array.
func contains(actual, expected any) bool {
	switch av := actual.(type) {
	case string:
		return strings.Contains(av, stringify(expected))
	case []any:
		for _, item := range av {
			if looseEqual(item, expected) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range av {
			if item == stringify(expected) {
				return true
			}
		}
		return false
	}
	return false
}

// inList treats the expected value as a list and tests membership.
// A scalar expected value degrades to a one-element list.
func inList(actual, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		list = []any{expected}
	}
	for _, item := range list {
		if looseEqual(actual, item) {
			return true
		}
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprintf("%v", v)
}
