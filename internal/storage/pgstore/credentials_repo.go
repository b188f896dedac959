package pgstore

import (
	"context"
	"time"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var ErrCredentialNotFound = errors.New("supplier credential not found")

// UpsertCredential сохраняет зашифрованный пакет креденшалов, ключ — (user, supplier).
func (s *Storage) UpsertCredential(ctx context.Context, c models.SupplierCredential) (*models.SupplierCredential, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := s.db.QueryRow(ctx, `
INSERT INTO supplier_credentials (
  id, user_id, supplier_id, supplier_type, credentials_encrypted,
  validation_status, last_validated_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
ON CONFLICT (user_id, supplier_id)
DO UPDATE SET
  supplier_type = EXCLUDED.supplier_type,
  credentials_encrypted = EXCLUDED.credentials_encrypted,
  validation_status = EXCLUDED.validation_status,
  last_validated_at = EXCLUDED.last_validated_at,
  updated_at = now()
RETURNING id, user_id, supplier_id, supplier_type, credentials_encrypted,
          validation_status, last_validated_at, created_at, updated_at
`, c.ID, c.UserID, c.SupplierID, c.SupplierType, c.Encrypted, c.ValidationStatus, c.LastValidatedAt)

	return scanCredential(row)
}

func (s *Storage) GetCredential(ctx context.Context, userID, supplierID string) (*models.SupplierCredential, error) {
	row := s.db.QueryRow(ctx, `
SELECT id, user_id, supplier_id, supplier_type, credentials_encrypted,
       validation_status, last_validated_at, created_at, updated_at
FROM supplier_credentials
WHERE user_id = $1 AND supplier_id = $2
`, userID, supplierID)

	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	return c, err
}

func scanCredential(row pgx.Row) (*models.SupplierCredential, error) {
	var c models.SupplierCredential
	err := row.Scan(
		&c.ID, &c.UserID, &c.SupplierID, &c.SupplierType, &c.Encrypted,
		&c.ValidationStatus, &c.LastValidatedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan credential")
	}
	return &c, nil
}

func (s *Storage) UpdateCredentialValidation(ctx context.Context, userID, supplierID, status string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE supplier_credentials
SET validation_status = $3, last_validated_at = $4, updated_at = now()
WHERE user_id = $1 AND supplier_id = $2
`, userID, supplierID, status, at.UTC())
	return errors.Wrap(err, "update credential validation")
}

// IncrementAPICalls — идемпотентный upsert счётчика вызовов за день.
func (s *Storage) IncrementAPICalls(ctx context.Context, userID, supplierID string, day time.Time) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO supplier_analytics (user_id, supplier_id, day, api_calls)
VALUES ($1, $2, $3, 1)
ON CONFLICT (user_id, supplier_id, day)
DO UPDATE SET api_calls = supplier_analytics.api_calls + 1
`, userID, supplierID, day.UTC().Format("2006-01-02"))
	return errors.Wrap(err, "increment api calls")
}

func (s *Storage) InsertNotification(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO notifications (id, user_id, kind, title, message, created_at)
VALUES ($1,$2,$3,$4,$5,now())
`, n.ID, n.UserID, n.Kind, n.Title, n.Message)
	return errors.Wrap(err, "insert notification")
}

func (s *Storage) GetMarketplaceIntegration(ctx context.Context, id string) (*models.MarketplaceIntegration, error) {
	var m models.MarketplaceIntegration
	err := s.db.QueryRow(ctx, `
SELECT id, user_id, platform, shop_url, status
FROM marketplace_integrations
WHERE id = $1
`, id).Scan(&m.ID, &m.UserID, &m.Platform, &m.ShopURL, &m.Status)
	if err != nil {
		return nil, errors.Wrap(err, "select marketplace integration")
	}
	return &m, nil
}
