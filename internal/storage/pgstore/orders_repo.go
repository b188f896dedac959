package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/pkg/errors"
)

// OrderTrackingUpdate — перезапись трекинг-состояния заказа очередным снимком.
// События заменяются целиком: провайдер каждый раз отдаёт полный список.
type OrderTrackingUpdate struct {
	UserID         string
	TrackingNumber string

	Carrier           string
	DeliveryStatus    string
	Events            []models.TrackingEvent
	EstimatedDelivery *time.Time

	Delivered   bool
	DeliveredAt *time.Time
}

// ApplyOrderTracking обновляет заказ по паре (tracking_number, user_id).
// Скоуп по user_id — инвариант безопасности: коллизия трек-номера между
// арендаторами не должна протечь в чужой заказ.
func (s *Storage) ApplyOrderTracking(ctx context.Context, upd OrderTrackingUpdate) error {
	eventsJSON, err := json.Marshal(upd.Events)
	if err != nil {
		return errors.Wrap(err, "marshal events")
	}

	if upd.Delivered {
		_, err = s.db.Exec(ctx, `
UPDATE orders
SET
  carrier = $3,
  delivery_status = $4,
  tracking_events = $5,
  estimated_delivery_date = $6,
  delivered_at = $7,
  fulfillment_status = 'delivered',
  updated_at = now()
WHERE tracking_number = $1 AND user_id = $2
`, upd.TrackingNumber, upd.UserID, upd.Carrier, upd.DeliveryStatus, eventsJSON, upd.EstimatedDelivery, upd.DeliveredAt)
	} else {
		_, err = s.db.Exec(ctx, `
UPDATE orders
SET
  carrier = $3,
  delivery_status = $4,
  tracking_events = $5,
  estimated_delivery_date = $6,
  updated_at = now()
WHERE tracking_number = $1 AND user_id = $2
`, upd.TrackingNumber, upd.UserID, upd.Carrier, upd.DeliveryStatus, eventsJSON, upd.EstimatedDelivery)
	}
	return errors.Wrap(err, "update order tracking")
}

// Статусы, при которых отправление считается "ещё движется".
var stillMovingStatuses = []string{
	models.DeliveryStatusPending,
	models.DeliveryStatusInTransit,
	models.DeliveryStatusOutForDelivery,
	models.TrackingStatusInfoReceived,
}

// ListActiveShipments возвращает трек-номера заказов пользователя, которые
// ещё движутся (не в терминальном статусе) и имеют номер.
func (s *Storage) ListActiveShipments(ctx context.Context, userID string, limit int) ([]string, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
SELECT tracking_number
FROM orders
WHERE user_id = $1
  AND tracking_number IS NOT NULL
  AND delivery_status = ANY($2)
ORDER BY updated_at ASC
LIMIT $3
`, userID, stillMovingStatuses, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select active shipments")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errors.Wrap(err, "scan tracking number")
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ListUsersWithActiveShipments — для планового обхода в воркере.
func (s *Storage) ListUsersWithActiveShipments(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := s.db.Query(ctx, `
SELECT DISTINCT user_id
FROM orders
WHERE tracking_number IS NOT NULL
  AND delivery_status = ANY($1)
LIMIT $2
`, stillMovingStatuses, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select users with shipments")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan user id")
		}
		out = append(out, id)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetOrderByTracking — для тестов и диагностики.
func (s *Storage) GetOrderByTracking(ctx context.Context, userID, trackingNumber string) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRow(ctx, `
SELECT id, user_id, tracking_number, carrier, delivery_status, fulfillment_status,
       estimated_delivery_date, delivered_at, updated_at
FROM orders
WHERE user_id = $1 AND tracking_number = $2
`, userID, trackingNumber).Scan(
		&o.ID, &o.UserID, &o.TrackingNumber, &o.Carrier, &o.DeliveryStatus, &o.FulfillmentStatus,
		&o.EstimatedDeliveryDate, &o.DeliveredAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	return &o, nil
}
