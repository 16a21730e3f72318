package processing

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/google/uuid"

	"github.com/ecomstream/analytics/internal/model"
	"github.com/ecomstream/analytics/internal/warehouse"
)

const pageViewsTable = "fact_page_views"

// ClickstreamEventProcessor appends to fact_page_views. Page views are
// immutable facts: every event is an independent insert keyed by its own
// page_view_id, so there is no update path.
type ClickstreamEventProcessor struct {
	store warehouse.Store
}

func NewClickstreamEventProcessor(store warehouse.Store) *ClickstreamEventProcessor {
	return &ClickstreamEventProcessor{store: store}
}

func (p *ClickstreamEventProcessor) EventTypes() []model.EventType {
	return []model.EventType{
		model.PageView,
		model.ProductView,
		model.AddToCart,
		model.RemoveFromCart,
		model.CheckoutStarted,
		model.CheckoutCompleted,
	}
}

func (p *ClickstreamEventProcessor) Process(ctx context.Context, evt model.Event) error {
	click, ok := evt.(*model.ClickstreamEvent)
	if !ok {
		return fmt.Errorf("clickstream: unexpected event payload for %s", evt.Type())
	}

	dateKey, _ := strconv.Atoi(click.EventTimestamp.Format("20060102"))

	err := p.store.Upsert(ctx, pageViewsTable, []string{"page_view_id"}, map[string]any{
		"page_view_id":    uuid.NewString(),
		"session_id":      click.SessionID,
		"visitor_id":      click.VisitorID,
		"customer_id":     nullable(click.CustomerID),
		"date_key":        dateKey,
		"event_timestamp": click.EventTimestamp,
		"page_url":        click.PageURL,
		"page_path":       click.PagePath,
		"page_title":      nullable(click.PageTitle),
		"referrer_url":    nullable(click.ReferrerURL),
		"utm_source":      nullable(click.UTMSource),
		"utm_medium":      nullable(click.UTMMedium),
		"utm_campaign":    nullable(click.UTMCampaign),
		"device_type":     nullable(click.DeviceType),
		"browser":         nullable(click.Browser),
		"product_id":      nullable(click.ProductID),
		"event_type":      string(click.EventType),
	})
	if err != nil {
		log.Printf("[error] page view insert failed type=%s session_id=%s: %v", evt.Type(), click.SessionID, err)
		return err
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
