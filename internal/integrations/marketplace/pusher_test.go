package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeIntegrations struct {
	integration *models.MarketplaceIntegration
}

func (f *fakeIntegrations) GetMarketplaceIntegration(_ context.Context, id string) (*models.MarketplaceIntegration, error) {
	if f.integration == nil || f.integration.ID != id {
		return nil, errors.New("marketplace integration not found")
	}
	return f.integration, nil
}

func TestHTTPPusher_PushStock(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &fakeIntegrations{integration: &models.MarketplaceIntegration{
		ID: "int-1", UserID: "user-1", Platform: "shopify", ShopURL: srv.URL, Status: "active",
	}}
	p := NewHTTPPusher(store, srv.Client(), nil)

	require.NoError(t, p.PushStock(context.Background(), "int-1", "prod-9", 17))
	require.Equal(t, "/api/sync/stock", gotPath)
	require.Equal(t, "shopify", gotBody["platform"])
	require.Equal(t, "prod-9", gotBody["product_id"])
	require.Equal(t, float64(17), gotBody["stock"])
}

func TestHTTPPusher_PushPrice_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := &fakeIntegrations{integration: &models.MarketplaceIntegration{
		ID: "int-1", Platform: "woocommerce", ShopURL: srv.URL, Status: "active",
	}}
	p := NewHTTPPusher(store, srv.Client(), nil)

	err := p.PushPrice(context.Background(), "int-1", "prod-1", 19.99)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestHTTPPusher_InactiveIntegration(t *testing.T) {
	store := &fakeIntegrations{integration: &models.MarketplaceIntegration{
		ID: "int-1", Platform: "shopify", ShopURL: "http://unused", Status: "disconnected",
	}}
	p := NewHTTPPusher(store, nil, nil)

	err := p.PushStock(context.Background(), "int-1", "prod-1", 3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disconnected")
}

func TestHTTPPusher_UnknownIntegration(t *testing.T) {
	p := NewHTTPPusher(&fakeIntegrations{}, nil, nil)
	err := p.PushPrice(context.Background(), "missing", "prod-1", 10)
	require.Error(t, err)
}
