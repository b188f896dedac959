package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/pkg/errors"
)

// Pusher — исходящий канал синхронизации значений на маркетплейс.
// Вотчеру нужна только эта способность, не конкретный протокол площадки.
type Pusher interface {
	PushStock(ctx context.Context, integrationID, productID string, stock int) error
	PushPrice(ctx context.Context, integrationID, productID string, price float64) error
}

// IntegrationStore отдаёт привязку интеграции к площадке магазина.
type IntegrationStore interface {
	GetMarketplaceIntegration(ctx context.Context, id string) (*models.MarketplaceIntegration, error)
}

// HTTPPusher шлёт обновления на вебхук-шлюз площадки, найденной по
// marketplace_integration_id.
type HTTPPusher struct {
	store IntegrationStore
	httpc *http.Client
	log   *slog.Logger
}

func NewHTTPPusher(store IntegrationStore, httpc *http.Client, log *slog.Logger) *HTTPPusher {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPPusher{store: store, httpc: httpc, log: log}
}

type pushPayload struct {
	Platform  string   `json:"platform"`
	ProductID string   `json:"product_id"`
	Field     string   `json:"field"`
	Stock     *int     `json:"stock,omitempty"`
	Price     *float64 `json:"price,omitempty"`
}

func (p *HTTPPusher) PushStock(ctx context.Context, integrationID, productID string, stock int) error {
	return p.push(ctx, integrationID, pushPayload{ProductID: productID, Field: "stock", Stock: &stock})
}

func (p *HTTPPusher) PushPrice(ctx context.Context, integrationID, productID string, price float64) error {
	return p.push(ctx, integrationID, pushPayload{ProductID: productID, Field: "price", Price: &price})
}

func (p *HTTPPusher) push(ctx context.Context, integrationID string, payload pushPayload) error {
	integ, err := p.store.GetMarketplaceIntegration(ctx, integrationID)
	if err != nil {
		return errors.Wrap(err, "resolve marketplace integration")
	}
	if integ.Status != "active" {
		return errors.Errorf("integration %s is %s", integrationID, integ.Status)
	}
	payload.Platform = integ.Platform

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal push payload")
	}

	url := fmt.Sprintf("%s/api/sync/%s", integ.ShopURL, payload.Field)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new push request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "push request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return errors.Errorf("marketplace %s responded %d", integ.Platform, resp.StatusCode)
	}

	p.log.Debug("marketplace push ok",
		"integration_id", integrationID, "platform", integ.Platform,
		"product_id", payload.ProductID, "field", payload.Field)
	return nil
}
