package syncapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dropsync/dropsync/internal/integrations/suppliers"
	"github.com/dropsync/dropsync/internal/models"
	"github.com/dropsync/dropsync/internal/services/tracking"
	"github.com/dropsync/dropsync/internal/services/watcher"
	"github.com/dropsync/dropsync/internal/storage/pgstore"
	"github.com/stretchr/testify/require"
)

type fakeTracking struct {
	lastUserID  string
	lastNumbers []string
}

func (f *fakeTracking) TrackSingle(_ context.Context, n, userID string) (*tracking.SingleResult, error) {
	f.lastUserID = userID
	f.lastNumbers = []string{n}
	return &tracking.SingleResult{Success: true, Data: &models.TrackingResult{TrackingNumber: n}}, nil
}

func (f *fakeTracking) TrackBatch(_ context.Context, ns []string, userID string) (*tracking.BatchOutcome, error) {
	f.lastUserID = userID
	f.lastNumbers = ns
	return &tracking.BatchOutcome{}, nil
}

func (f *fakeTracking) SyncAll(_ context.Context, userID string) (*tracking.SyncAllResult, error) {
	f.lastUserID = userID
	return &tracking.SyncAllResult{Synced: 2}, nil
}

func (f *fakeTracking) RegisterWebhook(_ context.Context, ns []string, userID string) (*tracking.WebhookResult, error) {
	f.lastUserID = userID
	f.lastNumbers = ns
	return &tracking.WebhookResult{Accepted: len(ns)}, nil
}

type fakeWatcher struct {
	checkErr   error
	lastUserID string
	lastFields pgstore.MonitoringUpdateFields
}

func (f *fakeWatcher) CheckProduct(_ context.Context, userID, id string) (*watcher.CheckResult, error) {
	f.lastUserID = userID
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return &watcher.CheckResult{MonitoringID: id, HasChanges: true}, nil
}

func (f *fakeWatcher) CheckAllProducts(_ context.Context, userID string) (*watcher.SweepResult, error) {
	f.lastUserID = userID
	return &watcher.SweepResult{Total: 3}, nil
}

func (f *fakeWatcher) UpdateConfig(_ context.Context, userID, id string, fields pgstore.MonitoringUpdateFields) (*models.MonitoringConfig, error) {
	f.lastUserID = userID
	f.lastFields = fields
	return &models.MonitoringConfig{ID: id, UserID: userID}, nil
}

func (f *fakeWatcher) GetDashboardStats(_ context.Context, userID string) (*watcher.DashboardStats, error) {
	f.lastUserID = userID
	return &watcher.DashboardStats{SyncSuccessRate: 100}, nil
}

type fakeSupplier struct {
	lastUserID string
}

func (f *fakeSupplier) ValidateCredentials(_ context.Context, supplierType string, _ map[string]string) (*suppliers.ValidationResult, error) {
	return &suppliers.ValidationResult{Valid: true, Message: supplierType}, nil
}

func (f *fakeSupplier) SaveCredentials(_ context.Context, userID, supplierID, supplierType string, _ map[string]string) (*models.SupplierCredential, *suppliers.ValidationResult, error) {
	f.lastUserID = userID
	return &models.SupplierCredential{ID: "cred-1", SupplierID: supplierID, SupplierType: supplierType, ValidationStatus: models.ValidationStatusValid},
		&suppliers.ValidationResult{Valid: true}, nil
}

func (f *fakeSupplier) TestConnection(_ context.Context, userID, _ string) (*suppliers.ValidationResult, error) {
	f.lastUserID = userID
	return &suppliers.ValidationResult{Valid: false, Message: "Identifiants refusés"}, nil
}

func (f *fakeSupplier) GetProducts(_ context.Context, userID, _, _ string, page, limit int) (*suppliers.ProductsResult, error) {
	f.lastUserID = userID
	products := make([]models.SupplierProduct, limit)
	return &suppliers.ProductsResult{Products: products, Source: suppliers.SourceDemo}, nil
}

func (f *fakeSupplier) GetInventory(_ context.Context, userID, _, _ string, skus []string) ([]models.InventoryUpdate, error) {
	f.lastUserID = userID
	out := make([]models.InventoryUpdate, len(skus))
	return out, nil
}

func newTestAPI() (*API, *fakeTracking, *fakeWatcher, *fakeSupplier) {
	tr := &fakeTracking{}
	w := &fakeWatcher{}
	sup := &fakeSupplier{}
	return New(tr, w, sup, nil), tr, w, sup
}

func post(t *testing.T, api *API, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCarrierTracking_TrackSingle(t *testing.T) {
	api, tr, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/carrier-tracking", "user-1",
		`{"action":"track_single","tracking_number":"TRK1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "user-1", tr.lastUserID)
	require.Equal(t, []string{"TRK1"}, tr.lastNumbers)
}

func TestCarrierTracking_MissingUserHeader(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/carrier-tracking", "",
		`{"action":"sync_all"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCarrierTracking_UserIDInBodyRejected(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/carrier-tracking", "user-1",
		`{"action":"sync_all","user_id":"victim"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody(t, rec)["error"], "user_id")
}

func TestCarrierTracking_UnknownAction(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/carrier-tracking", "user-1",
		`{"action":"teleport"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCarrierTracking_ValidationError(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/carrier-tracking", "user-1",
		`{"action":"track_batch","tracking_numbers":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStockMonitor_CheckProduct(t *testing.T) {
	api, _, w, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/stock-monitor", "user-1",
		`{"action":"check_product","monitoring_id":"mon-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", w.lastUserID)

	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, "mon-1", data["monitoring_id"])
}

func TestStockMonitor_NotFoundMapsTo404(t *testing.T) {
	api, _, w, _ := newTestAPI()
	w.checkErr = pgstore.ErrMonitoringNotFound

	rec := post(t, api, "/functions/v1/stock-monitor", "user-1",
		`{"action":"check_product","monitoring_id":"missing"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStockMonitor_CheckInProgressMapsTo409(t *testing.T) {
	api, _, w, _ := newTestAPI()
	w.checkErr = watcher.ErrCheckInProgress

	rec := post(t, api, "/functions/v1/stock-monitor", "user-1",
		`{"action":"check_product","monitoring_id":"mon-1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestStockMonitor_UpdateConfig(t *testing.T) {
	api, _, w, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/stock-monitor", "user-1",
		`{"action":"update_config","monitoring_id":"mon-1","config":{"monitor_stock":false,"check_frequency_minutes":30}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", w.lastUserID)
	require.NotNil(t, w.lastFields.MonitorStock)
	require.False(t, *w.lastFields.MonitorStock)
	require.Equal(t, 30, *w.lastFields.CheckFrequencyMinutes)
	// Неприсланные поля остаются nil — частичное обновление.
	require.Nil(t, w.lastFields.MonitorPrice)
}

func TestStockMonitor_DashboardStats(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/stock-monitor", "user-1",
		`{"action":"get_dashboard_stats"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, float64(100), data["sync_success_rate"])
}

func TestSupplierConnector_SaveCredentials(t *testing.T) {
	api, _, _, sup := newTestAPI()

	rec := post(t, api, "/functions/v1/supplier-connector", "user-1",
		`{"action":"save_credentials","supplier_id":"sup-1","supplier_type":"bigbuy","credentials":{"apiKey":"k"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", sup.lastUserID)

	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, "cred-1", data["credential_id"])
	require.Equal(t, "valid", data["validation_status"])
}

func TestSupplierConnector_GetProductsDefaults(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/supplier-connector", "user-1",
		`{"action":"get_products","supplier_type":"bigbuy"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Len(t, data["products"], 50)
	require.Equal(t, "demo", data["source"])
}

func TestSupplierConnector_GetInventory(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/supplier-connector", "user-1",
		`{"action":"get_inventory","supplier_type":"bigbuy","skus":["A","B"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["data"], 2)
}

func TestSupplierConnector_ListConnectors(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/supplier-connector", "user-1",
		`{"action":"list_connectors"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decodeBody(t, rec)["data"])
}

func TestSupplierConnector_InvalidJSON(t *testing.T) {
	api, _, _, _ := newTestAPI()

	rec := post(t, api, "/functions/v1/supplier-connector", "user-1", `{broken`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
