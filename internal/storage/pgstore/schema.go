package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL,
  tracking_number TEXT NULL,
  carrier TEXT NULL,
  delivery_status TEXT NOT NULL DEFAULT 'pending',
  fulfillment_status TEXT NOT NULL DEFAULT 'unfulfilled',
  tracking_events JSONB NULL,
  estimated_delivery_date TIMESTAMPTZ NULL,
  delivered_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_delivery ON orders(user_id, delivery_status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_tracking_number ON orders(tracking_number)`,
		`
CREATE TABLE IF NOT EXISTS stock_price_monitoring (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL,
  product_id UUID NOT NULL,
  marketplace_integration_id UUID NULL,
  monitor_stock BOOLEAN NOT NULL DEFAULT true,
  monitor_price BOOLEAN NOT NULL DEFAULT true,
  min_stock_threshold DOUBLE PRECISION NULL,
  max_price_variation_percent DOUBLE PRECISION NULL,
  stock_sync_enabled BOOLEAN NOT NULL DEFAULT false,
  price_sync_enabled BOOLEAN NOT NULL DEFAULT false,
  margin_type TEXT NOT NULL DEFAULT 'percentage',
  margin_value DOUBLE PRECISION NOT NULL DEFAULT 20,
  price_formula TEXT NOT NULL DEFAULT '',
  supplier_id TEXT NOT NULL DEFAULT '',
  supplier_sku TEXT NOT NULL DEFAULT '',
  supplier_stock DOUBLE PRECISION NULL,
  supplier_price DOUBLE PRECISION NULL,
  status TEXT NOT NULL DEFAULT 'active',
  check_frequency_minutes INT NOT NULL DEFAULT 60,
  last_checked_at TIMESTAMPTZ NULL,
  last_synced_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_monitoring_user_status ON stock_price_monitoring(user_id, status)`,
		`
CREATE TABLE IF NOT EXISTS stock_price_changes (
  id UUID PRIMARY KEY,
  monitoring_id UUID NOT NULL REFERENCES stock_price_monitoring(id) ON DELETE CASCADE,
  product_id UUID NOT NULL,
  change_type TEXT NOT NULL,
  old_value DOUBLE PRECISION NOT NULL,
  new_value DOUBLE PRECISION NOT NULL,
  change_percent DOUBLE PRECISION NOT NULL,
  auto_sync_applied BOOLEAN NOT NULL DEFAULT false,
  sync_result TEXT NOT NULL DEFAULT '',
  alert_triggered BOOLEAN NOT NULL DEFAULT false,
  detected_at TIMESTAMPTZ NOT NULL,
  synced_at TIMESTAMPTZ NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_monitoring_detected ON stock_price_changes(monitoring_id, detected_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS monitoring_alerts (
  id UUID PRIMARY KEY,
  monitoring_id UUID NOT NULL REFERENCES stock_price_monitoring(id) ON DELETE CASCADE,
  product_id UUID NOT NULL,
  marketplace TEXT NOT NULL DEFAULT '',
  alert_type TEXT NOT NULL,
  severity TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  read BOOLEAN NOT NULL DEFAULT false,
  resolved BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_monitoring_resolved ON monitoring_alerts(monitoring_id, resolved)`,
		`
CREATE TABLE IF NOT EXISTS supplier_credentials (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL,
  supplier_id TEXT NOT NULL,
  supplier_type TEXT NOT NULL,
  credentials_encrypted BYTEA NOT NULL,
  validation_status TEXT NOT NULL DEFAULT 'unvalidated',
  last_validated_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (user_id, supplier_id)
)`,
		`
CREATE TABLE IF NOT EXISTS supplier_analytics (
  user_id UUID NOT NULL,
  supplier_id TEXT NOT NULL,
  day DATE NOT NULL,
  api_calls BIGINT NOT NULL DEFAULT 0,
  PRIMARY KEY (user_id, supplier_id, day)
)`,
		`
CREATE TABLE IF NOT EXISTS marketplace_integrations (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL,
  platform TEXT NOT NULL,
  shop_url TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active'
)`,
		`
CREATE TABLE IF NOT EXISTS notifications (
  id UUID PRIMARY KEY,
  user_id UUID NOT NULL,
  kind TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
