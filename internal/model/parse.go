package model

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	defaultSource  = "ecommerce-platform"
	defaultVersion = "1.0"

	StageDecode  = "decode_envelope"
	StageType    = "event_type"
	StageSchema  = "schema_validation"
	StageVariant = "decode_variant"
)

// ParseError is a value, not a panic: the consumer's dead-letter branch is a
// plain nil check on the second return of ParseEvent.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing failed at %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	orderSchema       = mustCompileSchema("schemas/order.json")
	clickstreamSchema = mustCompileSchema("schemas/clickstream.json")
	baseSchema        = mustCompileSchema("schemas/base.json")
)

func mustCompileSchema(name string) *jsonschema.Schema {
	b, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("embedded schema %s: %v", name, err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	s, err := c.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return s
}

// ParseEvent turns a raw broker payload into a typed, validated event. Unknown
// event types and missing required fields are parse failures, never silently
// accepted.
func ParseEvent(raw []byte) (Event, *ParseError) {
	var probe struct {
		EventType EventType `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &ParseError{Stage: StageDecode, Err: err}
	}
	if !probe.EventType.Known() {
		return nil, &ParseError{Stage: StageType, Err: fmt.Errorf("unknown event_type %q", probe.EventType)}
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &ParseError{Stage: StageDecode, Err: err}
	}

	switch {
	case orderEventTypes[probe.EventType]:
		if err := orderSchema.Validate(payload); err != nil {
			return nil, &ParseError{Stage: StageSchema, Err: err}
		}
		var evt OrderEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, &ParseError{Stage: StageVariant, Err: err}
		}
		if evt.Currency == "" {
			evt.Currency = "USD"
		}
		applyBaseDefaults(&evt.BaseEvent)
		return &evt, nil

	case clickstreamEventTypes[probe.EventType]:
		if err := clickstreamSchema.Validate(payload); err != nil {
			return nil, &ParseError{Stage: StageSchema, Err: err}
		}
		var evt ClickstreamEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, &ParseError{Stage: StageVariant, Err: err}
		}
		applyBaseDefaults(&evt.BaseEvent)
		return &evt, nil

	default:
		if err := baseSchema.Validate(payload); err != nil {
			return nil, &ParseError{Stage: StageSchema, Err: err}
		}
		var evt BaseEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			return nil, &ParseError{Stage: StageVariant, Err: err}
		}
		applyBaseDefaults(&evt)
		return &evt, nil
	}
}

func applyBaseDefaults(b *BaseEvent) {
	if b.EventID == "" {
		b.EventID = uuid.NewString()
	}
	if b.Source == "" {
		b.Source = defaultSource
	}
	if b.Version == "" {
		b.Version = defaultVersion
	}
}
