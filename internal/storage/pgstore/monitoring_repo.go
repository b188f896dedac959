package pgstore

import (
	"context"
	"time"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var ErrMonitoringNotFound = errors.New("monitoring config not found")

const monitoringColumns = `
  id, user_id, product_id, marketplace_integration_id,
  monitor_stock, monitor_price,
  min_stock_threshold, max_price_variation_percent,
  stock_sync_enabled, price_sync_enabled,
  margin_type, margin_value, price_formula,
  supplier_id, supplier_sku,
  supplier_stock, supplier_price,
  status, last_checked_at, last_synced_at,
  created_at, updated_at`

func scanMonitoring(row pgx.Row) (*models.MonitoringConfig, error) {
	var m models.MonitoringConfig
	err := row.Scan(
		&m.ID, &m.UserID, &m.ProductID, &m.MarketplaceIntegrationID,
		&m.MonitorStock, &m.MonitorPrice,
		&m.MinStockThreshold, &m.MaxPriceVariationPercent,
		&m.StockSyncEnabled, &m.PriceSyncEnabled,
		&m.MarginType, &m.MarginValue, &m.PriceFormula,
		&m.SupplierID, &m.SupplierSKU,
		&m.SupplierStock, &m.SupplierPrice,
		&m.Status, &m.LastCheckedAt, &m.LastSyncedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMonitoring отдаёт конфигурацию только её владельцу: чужой id
// неотличим от несуществующего.
func (s *Storage) GetMonitoring(ctx context.Context, userID, id string) (*models.MonitoringConfig, error) {
	m, err := scanMonitoring(s.db.QueryRow(ctx,
		`SELECT `+monitoringColumns+` FROM stock_price_monitoring WHERE id = $1 AND user_id = $2`, id, userID))
	if err == pgx.ErrNoRows {
		return nil, ErrMonitoringNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select monitoring")
	}
	return m, nil
}

func (s *Storage) ListActiveMonitorings(ctx context.Context, userID string) ([]*models.MonitoringConfig, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+monitoringColumns+` FROM stock_price_monitoring WHERE user_id = $1 AND status = $2 ORDER BY created_at`,
		userID, models.MonitoringStatusActive)
	if err != nil {
		return nil, errors.Wrap(err, "select active monitorings")
	}
	defer rows.Close()

	var out []*models.MonitoringConfig
	for rows.Next() {
		m, err := scanMonitoring(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan monitoring")
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ListUsersWithActiveMonitorings(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := s.db.Query(ctx, `
SELECT DISTINCT user_id FROM stock_price_monitoring WHERE status = $1 LIMIT $2
`, models.MonitoringStatusActive, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select users with monitorings")
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

// CheckUpdate — результат одной проверки: новая базовая линия плюс все
// сгенерированные изменения и алерты, применяется одной транзакцией.
type CheckUpdate struct {
	MonitoringID string

	SupplierStock *float64
	SupplierPrice *float64
	Status        string
	CheckedAt     time.Time
	SyncedAt      *time.Time

	Changes []models.StockPriceChange
	Alerts  []models.MonitoringAlert
}

func (s *Storage) ApplyCheckResult(ctx context.Context, upd CheckUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
UPDATE stock_price_monitoring
SET
  supplier_stock = COALESCE($2, supplier_stock),
  supplier_price = COALESCE($3, supplier_price),
  status = $4,
  last_checked_at = $5,
  last_synced_at = COALESCE($6, last_synced_at),
  updated_at = now()
WHERE id = $1
`, upd.MonitoringID, upd.SupplierStock, upd.SupplierPrice, upd.Status, upd.CheckedAt.UTC(), upd.SyncedAt)
	if err != nil {
		return errors.Wrap(err, "update monitoring baseline")
	}

	for _, c := range upd.Changes {
		_, err := tx.Exec(ctx, `
INSERT INTO stock_price_changes (
  id, monitoring_id, product_id, change_type,
  old_value, new_value, change_percent,
  auto_sync_applied, sync_result, alert_triggered,
  detected_at, synced_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`, c.ID, c.MonitoringID, c.ProductID, c.ChangeType,
			c.OldValue, c.NewValue, c.ChangePercent,
			c.AutoSyncApplied, c.SyncResult, c.AlertTriggered,
			c.DetectedAt.UTC(), c.SyncedAt)
		if err != nil {
			return errors.Wrap(err, "insert change")
		}
	}

	for _, a := range upd.Alerts {
		_, err := tx.Exec(ctx, `
INSERT INTO monitoring_alerts (
  id, monitoring_id, product_id, marketplace,
  alert_type, severity, title, message,
  read, resolved, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,false,false,$9)
`, a.ID, a.MonitoringID, a.ProductID, a.Marketplace,
			a.AlertType, a.Severity, a.Title, a.Message, a.CreatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "insert alert")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

// HasUnresolvedAlert — дедупликация: не плодим одинаковые нерешённые алерты.
func (s *Storage) HasUnresolvedAlert(ctx context.Context, monitoringID, alertType string) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, `
SELECT count(*) FROM monitoring_alerts
WHERE monitoring_id = $1 AND alert_type = $2 AND resolved = false
`, monitoringID, alertType).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "count unresolved alerts")
	}
	return n > 0, nil
}

// MonitoringUpdateFields — частичное обновление конфигурации (update_config).
type MonitoringUpdateFields struct {
	MonitorStock             *bool
	MonitorPrice             *bool
	MinStockThreshold        *float64
	MaxPriceVariationPercent *float64
	StockSyncEnabled         *bool
	PriceSyncEnabled         *bool
	Status                   *string
	CheckFrequencyMinutes    *int
}

func (s *Storage) UpdateMonitoringConfig(ctx context.Context, userID, id string, f MonitoringUpdateFields) (*models.MonitoringConfig, error) {
	row := s.db.QueryRow(ctx, `
UPDATE stock_price_monitoring
SET
  monitor_stock = COALESCE($3, monitor_stock),
  monitor_price = COALESCE($4, monitor_price),
  min_stock_threshold = COALESCE($5, min_stock_threshold),
  max_price_variation_percent = COALESCE($6, max_price_variation_percent),
  stock_sync_enabled = COALESCE($7, stock_sync_enabled),
  price_sync_enabled = COALESCE($8, price_sync_enabled),
  status = COALESCE($9, status),
  check_frequency_minutes = COALESCE($10, check_frequency_minutes),
  updated_at = now()
WHERE id = $1 AND user_id = $2
RETURNING `+monitoringColumns,
		id, userID,
		f.MonitorStock, f.MonitorPrice,
		f.MinStockThreshold, f.MaxPriceVariationPercent,
		f.StockSyncEnabled, f.PriceSyncEnabled,
		f.Status, f.CheckFrequencyMinutes)

	m, err := scanMonitoring(row)
	if err == pgx.ErrNoRows {
		return nil, ErrMonitoringNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "update monitoring config")
	}
	return m, nil
}

// DashboardCounts — сырьё для агрегатора дашборда.
type DashboardCounts struct {
	MonitoringsByStatus map[string]int
	UnresolvedAlerts    map[string]int
	ChangesToday        int
	SyncedChangesToday  int
}

func (s *Storage) GetDashboardCounts(ctx context.Context, userID string, now time.Time) (DashboardCounts, error) {
	out := DashboardCounts{
		MonitoringsByStatus: map[string]int{},
		UnresolvedAlerts:    map[string]int{},
	}

	rows, err := s.db.Query(ctx, `
SELECT status, count(*) FROM stock_price_monitoring WHERE user_id = $1 GROUP BY status
`, userID)
	if err != nil {
		return out, errors.Wrap(err, "count monitorings")
	}
	defer rows.Close()
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return out, errors.Wrap(err, "scan status count")
		}
		out.MonitoringsByStatus[st] = n
	}
	if rows.Err() != nil {
		return out, errors.Wrap(rows.Err(), "rows")
	}

	aRows, err := s.db.Query(ctx, `
SELECT a.alert_type, count(*)
FROM monitoring_alerts a
JOIN stock_price_monitoring m ON m.id = a.monitoring_id
WHERE m.user_id = $1 AND a.resolved = false
GROUP BY a.alert_type
`, userID)
	if err != nil {
		return out, errors.Wrap(err, "count alerts")
	}
	defer aRows.Close()
	for aRows.Next() {
		var typ string
		var n int
		if err := aRows.Scan(&typ, &n); err != nil {
			return out, errors.Wrap(err, "scan alert count")
		}
		out.UnresolvedAlerts[typ] = n
	}
	if aRows.Err() != nil {
		return out, errors.Wrap(aRows.Err(), "rows")
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	err = s.db.QueryRow(ctx, `
SELECT
  count(*),
  count(*) FILTER (WHERE sync_result NOT LIKE 'failed%')
FROM stock_price_changes c
JOIN stock_price_monitoring m ON m.id = c.monitoring_id
WHERE m.user_id = $1 AND c.detected_at >= $2
`, userID, dayStart).Scan(&out.ChangesToday, &out.SyncedChangesToday)
	if err != nil {
		return out, errors.Wrap(err, "count changes today")
	}

	return out, nil
}
