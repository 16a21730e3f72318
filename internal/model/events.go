package model

import "time"

type EventType string

const (
	OrderCreated      EventType = "order_created"
	OrderUpdated      EventType = "order_updated"
	OrderCancelled    EventType = "order_cancelled"
	PaymentReceived   EventType = "payment_received"
	ShipmentCreated   EventType = "shipment_created"
	ShipmentDelivered EventType = "shipment_delivered"
	PageView          EventType = "page_view"
	ProductView       EventType = "product_view"
	AddToCart         EventType = "add_to_cart"
	RemoveFromCart    EventType = "remove_from_cart"
	CheckoutStarted   EventType = "checkout_started"
	CheckoutCompleted EventType = "checkout_completed"
	UserRegistered    EventType = "user_registered"
	UserLogin         EventType = "user_login"
)

var orderEventTypes = map[EventType]bool{
	OrderCreated:      true,
	OrderUpdated:      true,
	OrderCancelled:    true,
	PaymentReceived:   true,
	ShipmentCreated:   true,
	ShipmentDelivered: true,
}

var clickstreamEventTypes = map[EventType]bool{
	PageView:          true,
	ProductView:       true,
	AddToCart:         true,
	RemoveFromCart:    true,
	CheckoutStarted:   true,
	CheckoutCompleted: true,
}

var knownEventTypes = map[EventType]bool{
	OrderCreated:      true,
	OrderUpdated:      true,
	OrderCancelled:    true,
	PaymentReceived:   true,
	ShipmentCreated:   true,
	ShipmentDelivered: true,
	PageView:          true,
	ProductView:       true,
	AddToCart:         true,
	RemoveFromCart:    true,
	CheckoutStarted:   true,
	CheckoutCompleted: true,
	UserRegistered:    true,
	UserLogin:         true,
}

func (t EventType) Known() bool { return knownEventTypes[t] }

// Event is the common surface of every inbound event. Events are constructed
// once per message by ParseEvent and never mutated afterwards.
type Event interface {
	Type() EventType
	ID() string
	OccurredAt() time.Time
}

type BaseEvent struct {
	EventID        string    `json:"event_id"`
	EventType      EventType `json:"event_type"`
	EventTimestamp time.Time `json:"event_timestamp"`
	Source         string    `json:"source"`
	Version        string    `json:"version"`
}

func (e *BaseEvent) Type() EventType       { return e.EventType }
func (e *BaseEvent) ID() string            { return e.EventID }
func (e *BaseEvent) OccurredAt() time.Time { return e.EventTimestamp }

type OrderEvent struct {
	BaseEvent
	OrderID         string            `json:"order_id"`
	CustomerID      string            `json:"customer_id"`
	TotalAmount     float64           `json:"total_amount"`
	Currency        string            `json:"currency"`
	Items           []map[string]any  `json:"items"`
	Status          string            `json:"status"`
	PaymentMethod   string            `json:"payment_method"`
	ShippingAddress map[string]string `json:"shipping_address"`
}

type ClickstreamEvent struct {
	BaseEvent
	SessionID   string `json:"session_id"`
	VisitorID   string `json:"visitor_id"`
	CustomerID  string `json:"customer_id"`
	PageURL     string `json:"page_url"`
	PagePath    string `json:"page_path"`
	PageTitle   string `json:"page_title"`
	ReferrerURL string `json:"referrer_url"`
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	DeviceType  string `json:"device_type"`
	Browser     string `json:"browser"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
}
