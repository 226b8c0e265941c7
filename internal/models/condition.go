package models

import (
	"fmt"
	"strings"

	"github.com/noah-isme/activity-audit-api/pkg/props"
)

const propertiesPrefix = "properties."

// conditionFields maps predicate field names to record accessors.
var conditionFields = map[string]func(*ActivityRecord) props.Value{
	"riskLevel":   func(r *ActivityRecord) props.Value { return props.Int(r.RiskLevel) },
	"result":      func(r *ActivityRecord) props.Value { return props.String(string(r.Result)) },
	"type":        func(r *ActivityRecord) props.Value { return props.String(r.Type) },
	"module":      func(r *ActivityRecord) props.Value { return props.String(r.Module) },
	"actorId":     func(r *ActivityRecord) props.Value { return optionalString(r.ActorID) },
	"subjectType": func(r *ActivityRecord) props.Value { return optionalString(r.SubjectType) },
	"subjectId":   func(r *ActivityRecord) props.Value { return optionalString(r.SubjectID) },
	"ipAddress":   func(r *ActivityRecord) props.Value { return props.String(r.IPAddress) },
	"userAgent":   func(r *ActivityRecord) props.Value { return props.String(r.UserAgent) },
}

func optionalString(s *string) props.Value {
	if s == nil {
		return props.Null()
	}
	return props.String(*s)
}

// Validate rejects unknown fields and operator/value combinations that can never match.
func (c Condition) Validate() error {
	if _, ok := conditionFields[c.Field]; !ok {
		if !strings.HasPrefix(c.Field, propertiesPrefix) || len(c.Field) == len(propertiesPrefix) {
			return fmt.Errorf("unknown condition field %q", c.Field)
		}
	}
	switch c.Operator {
	case OpEqual, OpNotEqual:
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		if c.Value.Kind != props.KindNumber {
			return fmt.Errorf("operator %s on %q needs a numeric value", c.Operator, c.Field)
		}
	case OpIn:
		if c.Value.Kind != props.KindList {
			return fmt.Errorf("operator in on %q needs a list value", c.Field)
		}
	default:
		return fmt.Errorf("unknown condition operator %q", c.Operator)
	}
	return nil
}

// Matches evaluates the predicate against rec. Invalid predicates never match.
func (c Condition) Matches(rec *ActivityRecord) bool {
	if c.Validate() != nil {
		return false
	}
	actual := c.resolve(rec)

	switch c.Operator {
	case OpEqual:
		return actual.Equal(c.Value)
	case OpNotEqual:
		return !actual.Equal(c.Value)
	case OpIn:
		for _, item := range c.Value.Items {
			if actual.Equal(item) {
				return true
			}
		}
		return false
	}

	if actual.Kind != props.KindNumber {
		return false
	}
	switch c.Operator {
	case OpGreater:
		return actual.Num > c.Value.Num
	case OpGreaterEqual:
		return actual.Num >= c.Value.Num
	case OpLess:
		return actual.Num < c.Value.Num
	case OpLessEqual:
		return actual.Num <= c.Value.Num
	}
	return false
}

func (c Condition) resolve(rec *ActivityRecord) props.Value {
	if get, ok := conditionFields[c.Field]; ok {
		return get(rec)
	}
	current := rec.Properties
	for _, key := range strings.Split(strings.TrimPrefix(c.Field, propertiesPrefix), ".") {
		next, ok := current.Get(key)
		if !ok {
			return props.Null()
		}
		current = next
	}
	return current
}

// Validate checks every predicate.
func (cs Conditions) Validate() error {
	for i, c := range cs {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

// Matches reports whether all predicates hold. An empty set always matches.
func (cs Conditions) Matches(rec *ActivityRecord) bool {
	for _, c := range cs {
		if !c.Matches(rec) {
			return false
		}
	}
	return true
}
