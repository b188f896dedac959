package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dropsync/dropsync/internal/broker/messages"
	"github.com/dropsync/dropsync/internal/cache"
	"github.com/dropsync/dropsync/internal/integrations/marketplace"
	"github.com/dropsync/dropsync/internal/models"
	"github.com/dropsync/dropsync/internal/storage/pgstore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	GetMonitoring(ctx context.Context, userID, id string) (*models.MonitoringConfig, error)
	ListActiveMonitorings(ctx context.Context, userID string) ([]*models.MonitoringConfig, error)
	ApplyCheckResult(ctx context.Context, upd pgstore.CheckUpdate) error
	HasUnresolvedAlert(ctx context.Context, monitoringID, alertType string) (bool, error)
	UpdateMonitoringConfig(ctx context.Context, userID, id string, f pgstore.MonitoringUpdateFields) (*models.MonitoringConfig, error)
	GetDashboardCounts(ctx context.Context, userID string, now time.Time) (pgstore.DashboardCounts, error)
}

// SupplierFeed отдаёт текущие уровни поставщика; любое поле может
// отсутствовать — тогда соответствующая проверка пропускается.
type SupplierFeed interface {
	CurrentLevels(ctx context.Context, m *models.MonitoringConfig) (stock, price *float64, err error)
}

// Locker не даёт двум проверкам одного мониторинга идти одновременно.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

var ErrCheckInProgress = errors.New("check already in progress")

// CheckResult — итог одной проверки мониторинга.
type CheckResult struct {
	MonitoringID string                    `json:"monitoring_id"`
	HasChanges   bool                      `json:"has_changes"`
	Changes      []models.StockPriceChange `json:"changes"`
	Alerts       []models.MonitoringAlert  `json:"alerts"`
}

// SweepResult — агрегат прохода по всем активным мониторингам пользователя.
type SweepResult struct {
	Total        int `json:"total"`
	WithChanges  int `json:"with_changes"`
	TotalChanges int `json:"total_changes"`
	TotalAlerts  int `json:"total_alerts"`
	Failed       int `json:"failed"`
}

type Service struct {
	repo   Repository
	feed   SupplierFeed
	pusher marketplace.Pusher
	locker Locker
	pub    Publisher
	cache  cache.BytesCache
	log    *slog.Logger

	statsTTL time.Duration
	lockTTL  time.Duration
	now      func() time.Time
}

func New(repo Repository, feed SupplierFeed, pusher marketplace.Pusher, locker Locker, pub Publisher, c cache.BytesCache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		feed:     feed,
		pusher:   pusher,
		locker:   locker,
		pub:      pub,
		cache:    c,
		log:      log,
		statsTTL: 30 * time.Second,
		lockTTL:  time.Minute,
		now:      time.Now,
	}
}

func (s *Service) WithSettings(statsTTL, lockTTL time.Duration) *Service {
	if statsTTL > 0 {
		s.statsTTL = statsTTL
	}
	if lockTTL > 0 {
		s.lockTTL = lockTTL
	}
	return s
}

// CheckProduct прогоняет полный цикл сверки одного мониторинга:
// фид → дифф → изменения/алерты → пуш на маркетплейс → персист базовой линии.
// Мониторинг ищется в границах пользователя: чужой id — not found.
func (s *Service) CheckProduct(ctx context.Context, userID, monitoringID string) (*CheckResult, error) {
	if s.locker != nil {
		key := "monitor:lock:" + monitoringID
		ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			return nil, errors.Wrap(err, "acquire monitor lock")
		}
		if !ok {
			return nil, ErrCheckInProgress
		}
		defer func() { _ = s.locker.Release(ctx, key) }()
	}

	m, err := s.repo.GetMonitoring(ctx, userID, monitoringID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	res := &CheckResult{MonitoringID: monitoringID}

	stock, price, err := s.feed.CurrentLevels(ctx, m)
	if err != nil {
		// Недоступность поставщика — не отказ проверки: алерт и статус error.
		s.log.Warn("supplier feed failed",
			"monitoring_id", monitoringID, "supplier_id", m.SupplierID, "error", err.Error())
		s.appendAlert(ctx, m, res, models.AlertTypeSupplierUnavailable,
			"Fournisseur injoignable",
			fmt.Sprintf("Impossible de récupérer les données du fournisseur pour le produit %s", m.ProductID), now)
		s.persist(ctx, pgstore.CheckUpdate{
			MonitoringID: monitoringID,
			Status:       models.MonitoringStatusError,
			CheckedAt:    now,
			Alerts:       res.Alerts,
		})
		s.publishAlerts(ctx, m, res.Alerts)
		return res, nil
	}

	var synced bool

	if m.MonitorStock && stock != nil && (m.SupplierStock == nil || *stock != *m.SupplierStock) {
		if m.SupplierStock != nil {
			old := *m.SupplierStock
			change := s.newChange(m, models.ChangeTypeStock, old, *stock, now)

			if m.MinStockThreshold != nil && *stock < *m.MinStockThreshold {
				change.AlertTriggered = true
				s.appendAlert(ctx, m, res, models.AlertTypeStockLow,
					"Stock faible",
					fmt.Sprintf("Le stock du produit %s est passé à %.0f (seuil : %.0f)",
						m.ProductID, *stock, *m.MinStockThreshold), now)
			}
			if *stock == 0 {
				change.AlertTriggered = true
				s.appendAlert(ctx, m, res, models.AlertTypeStockOut,
					"Stock épuisé",
					fmt.Sprintf("Le produit %s est en rupture de stock chez le fournisseur", m.ProductID), now)
			}

			if m.StockSyncEnabled && m.MarketplaceIntegrationID != nil {
				if err := s.pusher.PushStock(ctx, *m.MarketplaceIntegrationID, m.ProductID, int(*stock)); err != nil {
					s.log.Warn("stock push failed",
						"monitoring_id", monitoringID, "error", err.Error())
					change.SyncResult = "failed: " + err.Error()
				} else {
					change.AutoSyncApplied = true
					change.SyncResult = "ok"
					change.SyncedAt = &now
					synced = true
				}
			}
			res.Changes = append(res.Changes, change)
		}
	}

	if m.MonitorPrice && price != nil && (m.SupplierPrice == nil || *price != *m.SupplierPrice) {
		if m.SupplierPrice != nil {
			old := *m.SupplierPrice
			change := s.newChange(m, models.ChangeTypePrice, old, *price, now)

			if m.MaxPriceVariationPercent != nil && math.Abs(change.ChangePercent) > *m.MaxPriceVariationPercent {
				change.AlertTriggered = true
				s.appendAlert(ctx, m, res, models.AlertTypePriceChange,
					"Variation de prix",
					fmt.Sprintf("Le prix fournisseur du produit %s est passé de %.2f à %.2f (%+.1f%%)",
						m.ProductID, old, *price, change.ChangePercent), now)
			}

			if m.PriceSyncEnabled && m.MarketplaceIntegrationID != nil {
				newPrice := CalculateMarketplacePrice(m, *price)
				if err := s.pusher.PushPrice(ctx, *m.MarketplaceIntegrationID, m.ProductID, newPrice); err != nil {
					s.log.Warn("price push failed",
						"monitoring_id", monitoringID, "error", err.Error())
					change.SyncResult = "failed: " + err.Error()
				} else {
					change.AutoSyncApplied = true
					change.SyncResult = "ok"
					change.SyncedAt = &now
					synced = true
				}
			}
			res.Changes = append(res.Changes, change)
		}
	}

	res.HasChanges = len(res.Changes) > 0

	upd := pgstore.CheckUpdate{
		MonitoringID:  monitoringID,
		SupplierStock: stock,
		SupplierPrice: price,
		Status:        models.MonitoringStatusActive,
		CheckedAt:     now,
		Changes:       res.Changes,
		Alerts:        res.Alerts,
	}
	if m.Status == models.MonitoringStatusPaused {
		upd.Status = m.Status
	}
	if synced {
		upd.SyncedAt = &now
	}
	s.persist(ctx, upd)
	s.publishAlerts(ctx, m, res.Alerts)

	return res, nil
}

func (s *Service) newChange(m *models.MonitoringConfig, changeType string, oldVal, newVal float64, now time.Time) models.StockPriceChange {
	return models.StockPriceChange{
		ID:            uuid.NewString(),
		MonitoringID:  m.ID,
		ProductID:     m.ProductID,
		ChangeType:    changeType,
		OldValue:      oldVal,
		NewValue:      newVal,
		ChangePercent: changePercent(oldVal, newVal),
		DetectedAt:    now,
	}
}

// changePercent считается от old; только при old == 0 знаменатель
// подменяется на 1, чтобы дельта осталась конечной.
func changePercent(oldVal, newVal float64) float64 {
	denom := oldVal
	if denom == 0 {
		denom = 1
	}
	return (newVal - oldVal) / denom * 100
}

// appendAlert добавляет алерт с дедупликацией по нерешённым того же типа.
func (s *Service) appendAlert(ctx context.Context, m *models.MonitoringConfig, res *CheckResult, alertType, title, message string, now time.Time) {
	exists, err := s.repo.HasUnresolvedAlert(ctx, m.ID, alertType)
	if err != nil {
		s.log.Warn("alert dedup lookup failed", "monitoring_id", m.ID, "error", err.Error())
	}
	if exists {
		return
	}

	mk := ""
	if m.MarketplaceIntegrationID != nil {
		mk = *m.MarketplaceIntegrationID
	}
	res.Alerts = append(res.Alerts, models.MonitoringAlert{
		ID:           uuid.NewString(),
		MonitoringID: m.ID,
		ProductID:    m.ProductID,
		Marketplace:  mk,
		AlertType:    alertType,
		Severity:     models.AlertSeverity(alertType),
		Title:        title,
		Message:      message,
		CreatedAt:    now,
	})
}

// persist — best-effort: неудача записи логируется, in-memory результат
// всё равно возвращается вызывающему.
func (s *Service) persist(ctx context.Context, upd pgstore.CheckUpdate) {
	if err := s.repo.ApplyCheckResult(ctx, upd); err != nil {
		s.log.Error("persist check result failed",
			"monitoring_id", upd.MonitoringID, "error", err.Error())
	}
}

func (s *Service) publishAlerts(ctx context.Context, m *models.MonitoringConfig, alerts []models.MonitoringAlert) {
	if s.pub == nil {
		return
	}
	for _, a := range alerts {
		b, err := json.Marshal(messages.MonitoringAlertEvent{
			AlertID:      a.ID,
			MonitoringID: a.MonitoringID,
			UserID:       m.UserID,
			ProductID:    a.ProductID,
			AlertType:    a.AlertType,
			Severity:     a.Severity,
			Title:        a.Title,
			CreatedAt:    a.CreatedAt,
		})
		if err != nil {
			continue
		}
		if err := s.pub.Publish(ctx, messages.TopicMonitoringAlert, []byte(m.UserID), b); err != nil {
			s.log.Warn("alert publish failed", "alert_id", a.ID, "error", err.Error())
		}
	}
}

// CheckAllProducts обходит активные мониторинги пользователя. Ошибка по
// одному товару не прерывает проход.
func (s *Service) CheckAllProducts(ctx context.Context, userID string) (*SweepResult, error) {
	monitorings, err := s.repo.ListActiveMonitorings(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list active monitorings")
	}

	out := &SweepResult{Total: len(monitorings)}
	for _, m := range monitorings {
		res, err := s.CheckProduct(ctx, userID, m.ID)
		if err != nil {
			out.Failed++
			s.log.Warn("monitoring check failed",
				"monitoring_id", m.ID, "user_id", userID, "error", err.Error())
			continue
		}
		if res.HasChanges {
			out.WithChanges++
		}
		out.TotalChanges += len(res.Changes)
		out.TotalAlerts += len(res.Alerts)
	}
	return out, nil
}

const (
	minCheckFrequency = 5
	maxCheckFrequency = 1440
	maxStockThreshold = 1000
)

// UpdateConfig — частичное обновление конфигурации с нормализацией
// пользовательского ввода в допустимые пределы.
func (s *Service) UpdateConfig(ctx context.Context, userID, monitoringID string, f pgstore.MonitoringUpdateFields) (*models.MonitoringConfig, error) {
	if f.CheckFrequencyMinutes != nil {
		v := *f.CheckFrequencyMinutes
		if v < minCheckFrequency {
			v = minCheckFrequency
		}
		if v > maxCheckFrequency {
			v = maxCheckFrequency
		}
		f.CheckFrequencyMinutes = &v
	}
	if f.MinStockThreshold != nil {
		v := *f.MinStockThreshold
		if v < 0 {
			v = 0
		}
		if v > maxStockThreshold {
			v = maxStockThreshold
		}
		f.MinStockThreshold = &v
	}
	if f.Status != nil {
		switch *f.Status {
		case models.MonitoringStatusActive, models.MonitoringStatusPaused:
		default:
			return nil, errors.Errorf("invalid status %q", *f.Status)
		}
	}

	m, err := s.repo.UpdateMonitoringConfig(ctx, userID, monitoringID, f)
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, userID)
	return m, nil
}

// DashboardStats — сводка для оператора.
type DashboardStats struct {
	TotalMonitorings    int            `json:"total_monitorings"`
	MonitoringsByStatus map[string]int `json:"monitorings_by_status"`
	UnresolvedAlerts    map[string]int `json:"unresolved_alerts"`
	ChangesToday        int            `json:"changes_today"`
	SyncSuccessRate     float64        `json:"sync_success_rate"`
}

// GetDashboardStats — read-through кэш поверх агрегатных запросов.
func (s *Service) GetDashboardStats(ctx context.Context, userID string) (*DashboardStats, error) {
	key := statsKey(userID)
	if s.cache != nil {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var st DashboardStats
			if json.Unmarshal(b, &st) == nil {
				return &st, nil
			}
		}
	}

	counts, err := s.repo.GetDashboardCounts(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "dashboard counts")
	}

	st := &DashboardStats{
		MonitoringsByStatus: counts.MonitoringsByStatus,
		UnresolvedAlerts:    counts.UnresolvedAlerts,
		ChangesToday:        counts.ChangesToday,
		SyncSuccessRate:     100,
	}
	for _, n := range counts.MonitoringsByStatus {
		st.TotalMonitorings += n
	}
	// На тихий день показываем 100%, а не пугающий ноль.
	if counts.ChangesToday > 0 {
		st.SyncSuccessRate = round2(float64(counts.SyncedChangesToday) / float64(counts.ChangesToday) * 100)
	}

	if s.cache != nil {
		if b, err := json.Marshal(st); err == nil {
			_ = s.cache.Set(ctx, key, b, s.statsTTL)
		}
	}
	return st, nil
}

// InvalidateStats сбрасывает кэш дашборда (вызывается консюмером алертов).
func (s *Service) InvalidateStats(ctx context.Context, userID string) {
	s.invalidateStats(ctx, userID)
}

func (s *Service) invalidateStats(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsKey(userID)); err != nil {
		s.log.Debug("stats cache invalidation failed", "user_id", userID, "error", err.Error())
	}
}

func statsKey(userID string) string {
	return "dashboard:stats:" + userID
}
