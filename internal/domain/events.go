package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Типы событий заказа, попадающие в outbox.
const (
	AggregateTypeOrder = "order"

	EventTypeOrderPlaced               = "order.placed"
	EventTypeOrderPaymentStatusChanged = "order.payment_status_changed"
	EventTypeOrderDeleted              = "order.deleted"
)

// OrderEventItem: позиция заказа в событии.
type OrderEventItem struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderEvent: полезная нагрузка событий заказа.
type OrderEvent struct {
	EventType     string           `json:"event_type"`
	OrderID       int64            `json:"order_id"`
	CustomerID    int64            `json:"customer_id"`
	PaymentStatus string           `json:"payment_status"`
	Total         string           `json:"total"`
	Items         []OrderEventItem `json:"items,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// NewOrderOutboxMessage сериализует событие заказа в сообщение outbox.
func NewOrderOutboxMessage(eventType string, order Order, now time.Time) (OutboxMessage, error) {
	event := OrderEvent{
		EventType:     eventType,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		PaymentStatus: string(order.PaymentStatus),
		Total:         order.Total().StringFixed(2),
		Timestamp:     now.UTC(),
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, OrderEventItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, err
	}

	return OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: AggregateTypeOrder,
		AggregateID:   strconv.FormatInt(order.ID, 10),
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now.UTC(),
	}, nil
}
