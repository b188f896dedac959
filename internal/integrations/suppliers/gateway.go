package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/pkg/errors"
)

// CredentialStore — персистентность креденшалов и сопутствующих записей.
type CredentialStore interface {
	UpsertCredential(ctx context.Context, c models.SupplierCredential) (*models.SupplierCredential, error)
	GetCredential(ctx context.Context, userID, supplierID string) (*models.SupplierCredential, error)
	UpdateCredentialValidation(ctx context.Context, userID, supplierID, status string, at time.Time) error
	IncrementAPICalls(ctx context.Context, userID, supplierID string, day time.Time) error
	InsertNotification(ctx context.Context, n models.Notification) error
}

// ValidationResult — ответ проверки креденшалов: булев итог плюс
// человекочитаемое пояснение, без стектрейсов наружу.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// ProductsResult содержит страницу каталога и источник данных
// ("live" или "demo"), чтобы UI мог пометить демо-режим.
type ProductsResult struct {
	Products []models.SupplierProduct `json:"products"`
	Source   string                   `json:"source"`
}

const (
	SourceLive = "live"
	SourceDemo = "demo"
)

// RateLimiter ограничивает частоту живых обращений к API поставщика.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Gateway — единый фасад над разношёрстными API поставщиков.
type Gateway struct {
	store CredentialStore
	vault *Vault
	httpc *http.Client
	log   *slog.Logger

	rl          RateLimiter
	rlPerMinute int64

	now func() time.Time
}

func NewGateway(store CredentialStore, vault *Vault, httpc *http.Client, log *slog.Logger) *Gateway {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{store: store, vault: vault, httpc: httpc, log: log, now: time.Now}
}

func (g *Gateway) WithRateLimiter(rl RateLimiter, perMinute int64) *Gateway {
	if perMinute <= 0 {
		perMinute = 60
	}
	g.rl = rl
	g.rlPerMinute = perMinute
	return g
}

// ValidateCredentials проверяет креденшалы живым GET на тестовый эндпоинт.
// Для неизвестного типа поставщика — разрешительный ответ: формат принят,
// живая проверка невозможна.
func (g *Gateway) ValidateCredentials(ctx context.Context, supplierType string, creds map[string]string) (*ValidationResult, error) {
	connector, ok := ConnectorFor(supplierType)
	if !ok {
		return &ValidationResult{
			Valid:   true,
			Message: "Format des identifiants accepté (vérification en ligne indisponible pour ce fournisseur)",
		}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, connector.BaseURL+connector.TestEndpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new test request")
	}
	connector.Auth.Apply(req, creds)

	resp, err := g.httpc.Do(req)
	if err != nil {
		g.log.Warn("credential check request failed", "supplier", connector.ID, "error", err.Error())
		return &ValidationResult{Valid: false, Message: "Impossible de joindre l'API du fournisseur"}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return &ValidationResult{Valid: true, Message: fmt.Sprintf("Connexion à %s réussie", connector.Name)}, nil
	}
	return &ValidationResult{
		Valid:   false,
		Message: fmt.Sprintf("Identifiants refusés par %s (HTTP %d)", connector.Name, resp.StatusCode),
	}, nil
}

// SaveCredentials шифрует пакет, апсертит по (user, supplier) и пишет
// информационное уведомление. Статус валидации берётся из живой проверки.
func (g *Gateway) SaveCredentials(ctx context.Context, userID, supplierID, supplierType string, creds map[string]string) (*models.SupplierCredential, *ValidationResult, error) {
	if len(creds) == 0 {
		return nil, nil, errors.New("credentials map is empty")
	}

	check, err := g.ValidateCredentials(ctx, supplierType, creds)
	if err != nil {
		return nil, nil, err
	}

	blob, err := g.vault.Encrypt(creds)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encrypt credentials")
	}

	status := models.ValidationStatusInvalid
	if check.Valid {
		status = models.ValidationStatusValid
	}
	now := g.now().UTC()

	saved, err := g.store.UpsertCredential(ctx, models.SupplierCredential{
		UserID:           userID,
		SupplierID:       supplierID,
		SupplierType:     supplierType,
		Encrypted:        blob,
		ValidationStatus: status,
		LastValidatedAt:  &now,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "upsert credential")
	}

	if err := g.store.InsertNotification(ctx, models.Notification{
		UserID:  userID,
		Kind:    "supplier_connected",
		Title:   "Fournisseur connecté",
		Message: fmt.Sprintf("Les identifiants du fournisseur %s ont été enregistrés", supplierType),
	}); err != nil {
		g.log.Warn("insert notification failed", "user_id", userID, "error", err.Error())
	}

	return saved, check, nil
}

// TestConnection перепроверяет сохранённые креденшалы и пишет результат
// обратно в validation_status / last_validated_at.
func (g *Gateway) TestConnection(ctx context.Context, userID, supplierID string) (*ValidationResult, error) {
	cred, err := g.store.GetCredential(ctx, userID, supplierID)
	if err != nil {
		return nil, err
	}

	creds, err := g.vault.Decrypt(cred.Encrypted)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt credentials")
	}

	check, err := g.ValidateCredentials(ctx, cred.SupplierType, creds)
	if err != nil {
		return nil, err
	}

	status := models.ValidationStatusInvalid
	if check.Valid {
		status = models.ValidationStatusValid
	}
	if err := g.store.UpdateCredentialValidation(ctx, userID, supplierID, status, g.now().UTC()); err != nil {
		g.log.Warn("validation writeback failed", "user_id", userID, "supplier_id", supplierID, "error", err.Error())
	}
	return check, nil
}

// GetProducts отдаёт страницу каталога. Живой источник — только при
// сохранённых креденшалах и известном коннекторе; любая ошибка живого
// вызова деградирует в демо-каталог, а не в отказ.
func (g *Gateway) GetProducts(ctx context.Context, userID, supplierID, supplierType string, page, limit int) (*ProductsResult, error) {
	source, kind := g.sourceFor(ctx, userID, supplierID, supplierType)

	products, err := source.GetProducts(ctx, page, limit)
	if err != nil && kind == SourceLive {
		g.log.Warn("live catalog fetch failed, falling back to demo",
			"supplier_id", supplierID, "supplier_type", supplierType, "error", err.Error())
		kind = SourceDemo
		products, err = NewDemoSource(supplierType).GetProducts(ctx, page, limit)
	}
	if err != nil {
		return nil, err
	}

	g.countCall(ctx, userID, supplierID)
	return &ProductsResult{Products: products, Source: kind}, nil
}

// GetInventory возвращает дельты остатков по списку SKU.
func (g *Gateway) GetInventory(ctx context.Context, userID, supplierID, supplierType string, skus []string) ([]models.InventoryUpdate, error) {
	source, kind := g.sourceFor(ctx, userID, supplierID, supplierType)

	updates, err := source.GetInventory(ctx, skus)
	if err != nil && kind == SourceLive {
		g.log.Warn("live inventory fetch failed, falling back to demo",
			"supplier_id", supplierID, "supplier_type", supplierType, "error", err.Error())
		updates, err = NewDemoSource(supplierType).GetInventory(ctx, skus)
	}
	if err != nil {
		return nil, err
	}

	g.countCall(ctx, userID, supplierID)
	return updates, nil
}

// sourceFor выбирает живой или демо-источник по наличию креденшалов.
func (g *Gateway) sourceFor(ctx context.Context, userID, supplierID, supplierType string) (DataSource, string) {
	connector, known := ConnectorFor(supplierType)
	if !known || supplierID == "" {
		return NewDemoSource(supplierType), SourceDemo
	}

	cred, err := g.store.GetCredential(ctx, userID, supplierID)
	if err != nil {
		// Отсутствие креденшалов — штатный триальный режим, не ошибка.
		g.log.Debug("no usable credential, demo mode", "supplier_id", supplierID, "error", err.Error())
		return NewDemoSource(supplierType), SourceDemo
	}

	creds, err := g.vault.Decrypt(cred.Encrypted)
	if err != nil {
		g.log.Warn("credential decrypt failed", "supplier_id", supplierID, "error", err.Error())
		return NewDemoSource(supplierType), SourceDemo
	}

	if !g.allowLiveCall(ctx, connector.ID) {
		return NewDemoSource(supplierType), SourceDemo
	}

	return NewLiveSource(connector, creds, g.httpc), SourceLive
}

// allowLiveCall — минутное окно на живые вызовы к конкретному поставщику.
// При превышении деградируем в демо-режим, а не возвращаем ошибку.
func (g *Gateway) allowLiveCall(ctx context.Context, connectorID string) bool {
	if g.rl == nil {
		return true
	}
	key := fmt.Sprintf("rl:supplier:%s:%s", connectorID, g.now().UTC().Format("200601021504"))
	allowed, n, err := g.rl.Allow(ctx, key, g.rlPerMinute, 70*time.Second)
	if err != nil {
		g.log.Warn("supplier rate limiter unavailable", "connector", connectorID, "error", err.Error())
		return true
	}
	if !allowed {
		g.log.Warn("supplier rate limit exceeded", "connector", connectorID, "count", n)
	}
	return allowed
}

func (g *Gateway) countCall(ctx context.Context, userID, supplierID string) {
	if supplierID == "" {
		return
	}
	if err := g.store.IncrementAPICalls(ctx, userID, supplierID, g.now().UTC()); err != nil {
		g.log.Warn("api call counter failed", "supplier_id", supplierID, "error", err.Error())
	}
}
