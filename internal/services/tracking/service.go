package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dropsync/dropsync/internal/broker/messages"
	"github.com/dropsync/dropsync/internal/integrations/carrier"
	"github.com/dropsync/dropsync/internal/models"
	"github.com/dropsync/dropsync/internal/storage/pgstore"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Провайдер принимает не больше 40 номеров за вызов.
const providerBatchSize = 40

// syncAllPageCap ограничивает полный пересинк одной страницей заказов.
const syncAllPageCap = 100

type Repository interface {
	ApplyOrderTracking(ctx context.Context, upd pgstore.OrderTrackingUpdate) error
	ListActiveShipments(ctx context.Context, userID string, limit int) ([]string, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// SingleResult — структурный итог track_single: отказ провайдера это не
// ошибка Go, вызывающий ветвится по Success.
type SingleResult struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Data    *models.TrackingResult `json:"data,omitempty"`
}

type TrackingError struct {
	TrackingNumber string `json:"tracking_number"`
	Error          string `json:"error"`
}

type BatchOutcome struct {
	Results []models.TrackingResult `json:"results"`
	Errors  []TrackingError         `json:"errors"`
}

type SyncAllResult struct {
	Synced  int                     `json:"synced"`
	Results []models.TrackingResult `json:"results"`
	Errors  []TrackingError         `json:"errors"`
}

type WebhookResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

type Service struct {
	client  carrier.Client
	repo    Repository
	pub     Publisher
	limiter *rate.Limiter
	log     *slog.Logger
	now     func() time.Time
}

// New собирает оркестратор. batchDelay — фиксированная пауза между
// пакетными вызовами провайдера (вежливость к чужому rate limit).
func New(client carrier.Client, repo Repository, pub Publisher, batchDelay time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	if batchDelay > 0 {
		limit = rate.Every(batchDelay)
	}
	return &Service{
		client:  client,
		repo:    repo,
		pub:     pub,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
		now:     time.Now,
	}
}

// TrackSingle опрашивает провайдера по одному номеру.
func (s *Service) TrackSingle(ctx context.Context, trackingNumber, userID string) (*SingleResult, error) {
	if trackingNumber == "" {
		return nil, errors.New("trackingNumber is required")
	}

	batch, err := s.client.GetTrackInfo(ctx, []string{trackingNumber})
	if err != nil {
		return nil, errors.Wrap(err, "provider call")
	}

	for _, rej := range batch.Rejected {
		if rej.Number == trackingNumber {
			return &SingleResult{
				Success: false,
				Error:   fmt.Sprintf("Numéro de suivi non trouvé : %s", rej.Error.Message),
			}, nil
		}
	}
	for _, acc := range batch.Accepted {
		if acc.Number != trackingNumber {
			continue
		}
		res := carrier.Normalize(acc.Number, acc.Track, s.now().UTC())
		s.updateOrderTracking(ctx, userID, res)
		return &SingleResult{Success: true, Data: &res}, nil
	}

	return &SingleResult{Success: false, Error: "Numéro de suivi non trouvé"}, nil
}

// TrackBatch разбивает вход на пакеты по 40, зовёт провайдера
// последовательно с паузой между пакетами и изолирует ошибки попакетно:
// упавший вызов превращается в per-number ошибки только своего пакета.
func (s *Service) TrackBatch(ctx context.Context, trackingNumbers []string, userID string) (*BatchOutcome, error) {
	if len(trackingNumbers) == 0 {
		return nil, errors.New("trackingNumbers is empty")
	}

	out := &BatchOutcome{}
	// Лимитер стартует с полным токеном: не сжечь его здесь — значит
	// отпустить второй пакет вплотную к первому.
	if len(trackingNumbers) > providerBatchSize {
		_ = s.limiter.Allow()
	}
	for start := 0; start < len(trackingNumbers); start += providerBatchSize {
		end := start + providerBatchSize
		if end > len(trackingNumbers) {
			end = len(trackingNumbers)
		}
		chunk := trackingNumbers[start:end]

		if start > 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, "inter-batch delay")
			}
		}

		batch, err := s.client.GetTrackInfo(ctx, chunk)
		if err != nil {
			s.log.Warn("provider batch failed",
				"from", start, "size", len(chunk), "error", err.Error())
			for _, n := range chunk {
				out.Errors = append(out.Errors, TrackingError{TrackingNumber: n, Error: err.Error()})
			}
			continue
		}

		now := s.now().UTC()
		for _, acc := range batch.Accepted {
			res := carrier.Normalize(acc.Number, acc.Track, now)
			s.updateOrderTracking(ctx, userID, res)
			out.Results = append(out.Results, res)
		}
		for _, rej := range batch.Rejected {
			out.Errors = append(out.Errors, TrackingError{
				TrackingNumber: rej.Number,
				Error:          rej.Error.Message,
			})
		}
	}
	return out, nil
}

// SyncAll пересинкует все ещё движущиеся отправления пользователя.
// Пустой список — нулевой успех, не ошибка.
func (s *Service) SyncAll(ctx context.Context, userID string) (*SyncAllResult, error) {
	numbers, err := s.repo.ListActiveShipments(ctx, userID, syncAllPageCap)
	if err != nil {
		return nil, errors.Wrap(err, "list active shipments")
	}
	if len(numbers) == 0 {
		return &SyncAllResult{}, nil
	}

	batch, err := s.TrackBatch(ctx, numbers, userID)
	if err != nil {
		return nil, err
	}
	return &SyncAllResult{
		Synced:  len(batch.Results),
		Results: batch.Results,
		Errors:  batch.Errors,
	}, nil
}

// RegisterWebhook подписывает номера на push-уведомления провайдера.
// Частичные отказы не валят вызов, а считаются.
func (s *Service) RegisterWebhook(ctx context.Context, trackingNumbers []string, userID string) (*WebhookResult, error) {
	if len(trackingNumbers) == 0 {
		return nil, errors.New("trackingNumbers is empty")
	}

	out := &WebhookResult{}
	if len(trackingNumbers) > providerBatchSize {
		_ = s.limiter.Allow()
	}
	for start := 0; start < len(trackingNumbers); start += providerBatchSize {
		end := start + providerBatchSize
		if end > len(trackingNumbers) {
			end = len(trackingNumbers)
		}

		if start > 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, errors.Wrap(err, "inter-batch delay")
			}
		}

		batch, err := s.client.RegisterWebhook(ctx, trackingNumbers[start:end])
		if err != nil {
			return nil, errors.Wrap(err, "register webhook")
		}
		out.Accepted += len(batch.Accepted)
		out.Rejected += len(batch.Rejected)
	}

	s.log.Info("webhook registration done",
		"user_id", userID, "accepted", out.Accepted, "rejected", out.Rejected)
	return out, nil
}

// Второй фиксированный маппинг: канонический статус → статус доставки заказа.
var statusToDelivery = map[string]string{
	models.TrackingStatusPending:        models.DeliveryStatusPending,
	models.TrackingStatusInfoReceived:   models.DeliveryStatusPending,
	models.TrackingStatusInTransit:      models.DeliveryStatusInTransit,
	models.TrackingStatusOutForDelivery: models.DeliveryStatusOutForDelivery,
	models.TrackingStatusDelivered:      models.DeliveryStatusDelivered,
	models.TrackingStatusException:      models.DeliveryStatusFailed,
	models.TrackingStatusExpired:        models.DeliveryStatusFailed,
}

// updateOrderTracking применяет снимок к заказу. Неудача персиста
// логируется и не прерывает поток вызывающего.
func (s *Service) updateOrderTracking(ctx context.Context, userID string, res models.TrackingResult) {
	deliveryStatus, ok := statusToDelivery[res.Status]
	if !ok {
		deliveryStatus = models.DeliveryStatusPending
	}

	upd := pgstore.OrderTrackingUpdate{
		UserID:            userID,
		TrackingNumber:    res.TrackingNumber,
		Carrier:           res.Carrier,
		DeliveryStatus:    deliveryStatus,
		Events:            res.Events,
		EstimatedDelivery: res.EstimatedDelivery,
	}
	if res.Status == models.TrackingStatusDelivered {
		upd.Delivered = true
		deliveredAt := res.LastUpdate
		upd.DeliveredAt = &deliveredAt
	}

	if err := s.repo.ApplyOrderTracking(ctx, upd); err != nil {
		s.log.Error("order tracking update failed",
			"tracking_number", res.TrackingNumber, "user_id", userID, "error", err.Error())
		return
	}

	s.publishSynced(ctx, userID, res, deliveryStatus)
}

func (s *Service) publishSynced(ctx context.Context, userID string, res models.TrackingResult, deliveryStatus string) {
	if s.pub == nil {
		return
	}
	b, err := json.Marshal(messages.TrackingSyncedEvent{
		TrackingNumber: res.TrackingNumber,
		UserID:         userID,
		Status:         res.Status,
		DeliveryStatus: deliveryStatus,
		EventCount:     len(res.Events),
		SyncedAt:       s.now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.pub.Publish(ctx, messages.TopicTrackingSynced, []byte(userID), b); err != nil {
		s.log.Warn("tracking event publish failed",
			"tracking_number", res.TrackingNumber, "error", err.Error())
	}
}
