package processing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ecomstream/analytics/internal/model"
	"github.com/ecomstream/analytics/internal/warehouse"
)

const ordersTable = "fact_orders"

// OrderEventProcessor maintains fact_orders. Creation inserts keyed by
// order_number (conflict is a no-op); later lifecycle events update status by
// order_number lookup.
type OrderEventProcessor struct {
	store warehouse.Store
}

func NewOrderEventProcessor(store warehouse.Store) *OrderEventProcessor {
	return &OrderEventProcessor{store: store}
}

func (p *OrderEventProcessor) EventTypes() []model.EventType {
	return []model.EventType{
		model.OrderCreated,
		model.OrderUpdated,
		model.OrderCancelled,
		model.PaymentReceived,
		model.ShipmentCreated,
		model.ShipmentDelivered,
	}
}

func (p *OrderEventProcessor) Process(ctx context.Context, evt model.Event) error {
	order, ok := evt.(*model.OrderEvent)
	if !ok {
		return fmt.Errorf("orders: unexpected event payload for %s", evt.Type())
	}

	switch evt.Type() {
	case model.OrderCreated:
		err := p.store.Upsert(ctx, ordersTable, []string{"order_number"}, map[string]any{
			"order_id":        uuid.NewString(),
			"order_number":    order.OrderID,
			"customer_id":     order.CustomerID,
			"total_amount":    order.TotalAmount,
			"currency":        order.Currency,
			"order_timestamp": order.EventTimestamp,
			"status":          "pending",
		})
		if err != nil {
			log.Printf("[error] order insert failed type=%s order_number=%s: %v", evt.Type(), order.OrderID, err)
			return err
		}
		return nil

	default:
		rows, err := p.store.Update(ctx, ordersTable,
			map[string]any{"order_number": order.OrderID},
			map[string]any{"status": statusFor(order), "updated_at": time.Now().UTC()},
		)
		if err != nil {
			log.Printf("[error] order update failed type=%s order_number=%s: %v", evt.Type(), order.OrderID, err)
			return err
		}
		if rows == 0 {
			// Update arrived before (or instead of) the create; observable gap,
			// surfaced in logs rather than guessed at.
			log.Printf("[warn] order update matched no row type=%s order_number=%s", evt.Type(), order.OrderID)
		}
		return nil
	}
}

func statusFor(order *model.OrderEvent) string {
	switch order.EventType {
	case model.OrderCancelled:
		return "cancelled"
	case model.PaymentReceived:
		return "paid"
	case model.ShipmentCreated:
		return "shipped"
	case model.ShipmentDelivered:
		return "delivered"
	default:
		if order.Status != "" {
			return order.Status
		}
		return "updated"
	}
}
