package runtime

import (
	"math"
	"strings"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/warriorguo/eventflow/types"
	"github.com/warriorguo/eventflow/utils"
)

// evaluateCondition returns the branch of a condition node. An error means
// the branch cannot be decided and the path stops here.
func (f *flow) evaluateCondition(fc *flowContext, node *types.Node) (bool, error) {
	cond, ok := node.Data.(*types.ConditionData)
	if !ok || cond == nil {
		return false, types.NewValidationErrorf("condition node %s has no condition data", node.ID)
	}

	switch cond.Kind {
	case "", types.ConditionField:
		return evaluateFieldCondition(fc.payload, cond, node.ID), nil

	case types.ConditionHTTPRequest:
		value, exists, err := f.resolveHTTPSubject(fc, node, cond)
		if err != nil {
			return false, errors.Trace(err)
		}
		if !exists {
			return false, nil
		}
		return compare(value, cond.Operator, cond.Value), nil
	}
	return false, types.NewExecutionErrorf("condition node %s: unknown condition type %s", node.ID, cond.Kind)
}

func evaluateFieldCondition(payload types.Data, cond *types.ConditionData, nodeID string) bool {
	if strings.TrimSpace(cond.Field) == "" {
		log.Warnf("condition node %s has no field, evaluating to false", nodeID)
		return false
	}
	value, exists := payload.Lookup(cond.Field)
	if !exists {
		log.Debugf("condition node %s: field %s not found in payload", nodeID, cond.Field)
		return false
	}
	return compare(value, cond.Operator, cond.Value)
}

/**
 * compare applies op between the resolved subject and the literal.
 * EQUALS, NOT_EQUALS and CONTAINS compare string forms, GREATER_THAN and
 * LESS_THAN compare numbers and are false when a side is not numeric.
 * An unknown operator is false.
 */
func compare(actual any, op types.Operator, expected any) bool {
	switch op {
	case types.OpEquals:
		return utils.Stringify(actual) == utils.Stringify(expected)
	case types.OpNotEquals:
		return utils.Stringify(actual) != utils.Stringify(expected)
	case types.OpContains:
		return strings.Contains(utils.Stringify(actual), utils.Stringify(expected))
	case types.OpGreaterThan, types.OpLessThan:
		a, aok := toNumber(actual)
		b, bok := toNumber(expected)
		if !aok || !bok {
			return false
		}
		if op == types.OpGreaterThan {
			return a > b
		}
		return a < b
	}
	log.Warnf("unknown condition operator %q, evaluating to false", op)
	return false
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case string:
		v = strings.TrimSpace(val)
		if v == "" {
			return 0, false
		}
	}
	n, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}
