package model

import (
	"strings"
	"testing"
	"time"
)

func TestParseOrderEventAppliesDefaults(t *testing.T) {
	raw := []byte(`{
		"event_type": "order_created",
		"event_timestamp": "2025-01-01T00:00:00Z",
		"order_id": "O1",
		"customer_id": "C1",
		"total_amount": 50.0
	}`)
	evt, perr := ParseEvent(raw)
	if perr != nil {
		t.Fatalf("ParseEvent: %v", perr)
	}
	order, ok := evt.(*OrderEvent)
	if !ok {
		t.Fatalf("expected *OrderEvent, got %T", evt)
	}
	if order.Type() != OrderCreated {
		t.Errorf("type %s, want order_created", order.Type())
	}
	if order.EventID == "" {
		t.Error("event_id must be generated when absent")
	}
	if order.Currency != "USD" || order.Source != "ecommerce-platform" || order.Version != "1.0" {
		t.Errorf("defaults not applied: currency=%q source=%q version=%q",
			order.Currency, order.Source, order.Version)
	}
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !order.OccurredAt().Equal(want) {
		t.Errorf("timestamp %v, want %v", order.OccurredAt(), want)
	}
}

func TestParseKeepsSuppliedEventID(t *testing.T) {
	raw := []byte(`{
		"event_id": "evt-42",
		"event_type": "order_created",
		"event_timestamp": "2025-01-01T00:00:00Z",
		"order_id": "O1",
		"customer_id": "C1",
		"total_amount": 1
	}`)
	evt, perr := ParseEvent(raw)
	if perr != nil {
		t.Fatalf("ParseEvent: %v", perr)
	}
	if evt.ID() != "evt-42" {
		t.Errorf("event_id %q, want evt-42", evt.ID())
	}
}

func TestParseClickstreamEvent(t *testing.T) {
	raw := []byte(`{
		"event_type": "page_view",
		"event_timestamp": "2025-03-04T12:30:00Z",
		"session_id": "S1",
		"visitor_id": "V1",
		"page_url": "https://shop.example/p/1",
		"page_path": "/p/1",
		"utm_source": "newsletter"
	}`)
	evt, perr := ParseEvent(raw)
	if perr != nil {
		t.Fatalf("ParseEvent: %v", perr)
	}
	click, ok := evt.(*ClickstreamEvent)
	if !ok {
		t.Fatalf("expected *ClickstreamEvent, got %T", evt)
	}
	if click.SessionID != "S1" || click.UTMSource != "newsletter" {
		t.Errorf("fields not decoded: session=%q utm_source=%q", click.SessionID, click.UTMSource)
	}
}

func TestParseUserEventFallsBackToBase(t *testing.T) {
	raw := []byte(`{"event_type": "user_login", "event_timestamp": "2025-01-01T00:00:00Z"}`)
	evt, perr := ParseEvent(raw)
	if perr != nil {
		t.Fatalf("ParseEvent: %v", perr)
	}
	if _, ok := evt.(*BaseEvent); !ok {
		t.Fatalf("expected *BaseEvent, got %T", evt)
	}
}

func TestParseRejectsUnknownEventType(t *testing.T) {
	raw := []byte(`{"event_type": "order_exploded", "event_timestamp": "2025-01-01T00:00:00Z"}`)
	_, perr := ParseEvent(raw)
	if perr == nil {
		t.Fatal("unknown event_type must fail")
	}
	if perr.Stage != StageType {
		t.Errorf("stage %s, want %s", perr.Stage, StageType)
	}
}

func TestParseRejectsMissingEventType(t *testing.T) {
	_, perr := ParseEvent([]byte(`{"order_id": "O1"}`))
	if perr == nil {
		t.Fatal("missing event_type must fail")
	}
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	// order_created without customer_id.
	raw := []byte(`{
		"event_type": "order_created",
		"event_timestamp": "2025-01-01T00:00:00Z",
		"order_id": "O1",
		"total_amount": 5
	}`)
	_, perr := ParseEvent(raw)
	if perr == nil {
		t.Fatal("missing required field must fail")
	}
	if perr.Stage != StageSchema {
		t.Errorf("stage %s, want %s", perr.Stage, StageSchema)
	}
	if !strings.Contains(perr.Error(), "parsing failed") {
		t.Errorf("error %q should carry the parse-failure indication", perr.Error())
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, perr := ParseEvent([]byte(`{"event_type": `))
	if perr == nil {
		t.Fatal("malformed JSON must fail")
	}
	if perr.Stage != StageDecode {
		t.Errorf("stage %s, want %s", perr.Stage, StageDecode)
	}
}

func TestParseRejectsBadTimestamp(t *testing.T) {
	raw := []byte(`{
		"event_type": "order_created",
		"event_timestamp": "yesterday",
		"order_id": "O1",
		"customer_id": "C1",
		"total_amount": 5
	}`)
	_, perr := ParseEvent(raw)
	if perr == nil {
		t.Fatal("unparseable timestamp must fail")
	}
}
