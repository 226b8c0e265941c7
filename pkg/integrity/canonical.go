package integrity

import (
	"fmt"
	"time"

	"github.com/noah-isme/activity-audit-api/pkg/props"
)

// Canonical field names, in signing order.
const (
	FieldType        = "type"
	FieldDescription = "description"
	FieldActorID     = "actor_id"
	FieldModule      = "module"
	FieldResult      = "result"
	FieldCreatedAt   = "created_at"
	FieldProperties  = "properties"
)

// timestampLayout pins microsecond precision, matching Postgres timestamptz.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Fields is the signed subset of an activity record. Properties must already be redacted.
type Fields struct {
	Type        string
	Description string
	ActorID     *string
	Module      string
	Result      string
	CreatedAt   time.Time
	Properties  props.Value
}

type canonicalizer func(Fields) ([]byte, error)

// formats maps a version tag to its byte layout. Versions added by key rotation
// without a layout change fall back to the v1 layout.
var formats = map[string]canonicalizer{
	"v1": canonicalV1,
}

// Canonicalize renders fields into the deterministic byte string signed under version.
func Canonicalize(version string, fields Fields) ([]byte, error) {
	format, ok := formats[version]
	if !ok {
		format = canonicalV1
	}
	return format(fields)
}

// canonicalV1 is a JSON array of [name, value] pairs in fixed order. Properties
// use sorted keys and fixed number formatting via props.CanonicalJSON.
func canonicalV1(f Fields) ([]byte, error) {
	if f.CreatedAt.IsZero() {
		return nil, fmt.Errorf("created_at is required for signing")
	}
	actor := props.Null()
	if f.ActorID != nil {
		actor = props.String(*f.ActorID)
	}
	properties := f.Properties
	if properties.IsNull() {
		properties = props.Object()
	}
	pairs := []struct {
		name  string
		value props.Value
	}{
		{FieldType, props.String(f.Type)},
		{FieldDescription, props.String(f.Description)},
		{FieldActorID, actor},
		{FieldModule, props.String(f.Module)},
		{FieldResult, props.String(f.Result)},
		{FieldCreatedAt, props.String(f.CreatedAt.UTC().Truncate(time.Microsecond).Format(timestampLayout))},
		{FieldProperties, properties},
	}
	items := make([]props.Value, len(pairs))
	for i, p := range pairs {
		items[i] = props.List(props.String(p.name), p.value)
	}
	return props.List(items...).CanonicalJSON()
}
