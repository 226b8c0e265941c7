package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-audit-api/pkg/props"
)

func TestConditionsMatchRiskLevel(t *testing.T) {
	conds := Conditions{{Field: "riskLevel", Operator: OpGreaterEqual, Value: props.Int(5)}}
	require.NoError(t, conds.Validate())

	assert.True(t, conds.Matches(&ActivityRecord{RiskLevel: 8}))
	assert.True(t, conds.Matches(&ActivityRecord{RiskLevel: 5}))
	assert.False(t, conds.Matches(&ActivityRecord{RiskLevel: 2}))
	assert.True(t, Conditions(nil).Matches(&ActivityRecord{}))
}

func TestConditionsMatchStringsListsAndProperties(t *testing.T) {
	actor := "user-1"
	rec := &ActivityRecord{
		Type:       "users.delete",
		Result:     ResultFailure,
		ActorID:    &actor,
		Properties: props.Object(props.F("target", props.Object(props.F("role", props.String("admin"))))),
	}

	cases := []struct {
		cond Condition
		want bool
	}{
		{Condition{Field: "result", Operator: OpEqual, Value: props.String("failure")}, true},
		{Condition{Field: "type", Operator: OpNotEqual, Value: props.String("users.delete")}, false},
		{Condition{Field: "module", Operator: OpIn, Value: props.List(props.String(""), props.String("roles"))}, true},
		{Condition{Field: "actorId", Operator: OpEqual, Value: props.Null()}, false},
		{Condition{Field: "subjectId", Operator: OpEqual, Value: props.Null()}, true},
		{Condition{Field: "properties.target.role", Operator: OpEqual, Value: props.String("admin")}, true},
		{Condition{Field: "properties.missing", Operator: OpEqual, Value: props.Null()}, true},
		{Condition{Field: "type", Operator: OpGreater, Value: props.Int(1)}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.cond.Matches(rec), "%s %s", tc.cond.Field, tc.cond.Operator)
	}
}

func TestConditionValidate(t *testing.T) {
	assert.Error(t, Condition{Field: "password", Operator: OpEqual, Value: props.String("x")}.Validate())
	assert.Error(t, Condition{Field: "properties.", Operator: OpEqual}.Validate())
	assert.Error(t, Condition{Field: "riskLevel", Operator: ">=", Value: props.String("5")}.Validate())
	assert.Error(t, Condition{Field: "riskLevel", Operator: "~", Value: props.Int(5)}.Validate())
	assert.Error(t, Condition{Field: "module", Operator: OpIn, Value: props.String("x")}.Validate())
	assert.Error(t, Conditions{{Field: "nope", Operator: OpEqual}}.Validate())
}

func TestConditionsScanRoundTrip(t *testing.T) {
	raw := []byte(`[{"field":"riskLevel","operator":">=","value":5}]`)
	var conds Conditions
	require.NoError(t, conds.Scan(raw))
	require.Len(t, conds, 1)
	assert.Equal(t, OpGreaterEqual, conds[0].Operator)
	assert.Equal(t, float64(5), conds[0].Value.Num)

	value, err := conds.Value()
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(value.([]byte)))

	require.NoError(t, conds.Scan(nil))
	assert.Nil(t, conds)
	assert.Error(t, conds.Scan(3))
	assert.Error(t, conds.Scan("not json"))

	empty, err := Conditions(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), empty)
}

func TestArchivedRecordSnapshotRoundTrip(t *testing.T) {
	actor := "user-1"
	sig := "v1:abc"
	rec := ActivityRecord{
		ID:         "act-1",
		Type:       "login",
		ActorID:    &actor,
		Properties: props.Object(props.F("k", props.String("v"))),
		Result:     ResultSuccess,
		RiskLevel:  3,
		Signature:  &sig,
	}
	archived := NewArchivedRecord(rec, "system", "policy: 30 days", rec.CreatedAt)
	assert.Equal(t, "act-1", archived.OriginalID)

	restored := archived.Snapshot()
	assert.Equal(t, rec.ID, restored.ID)
	assert.True(t, rec.Properties.Equal(restored.Properties))
	assert.Equal(t, rec.CanonicalFields().Type, restored.CanonicalFields().Type)

	encoded, err := json.Marshal(restored)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"signature":"v1:abc"`)
}
