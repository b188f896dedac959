package syncapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/dropsync/dropsync/internal/services/tracking"
	"github.com/dropsync/dropsync/internal/services/watcher"
	"github.com/dropsync/dropsync/internal/storage/pgstore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/dropsync/dropsync/internal/integrations/suppliers"
)

type TrackingService interface {
	TrackSingle(ctx context.Context, trackingNumber, userID string) (*tracking.SingleResult, error)
	TrackBatch(ctx context.Context, trackingNumbers []string, userID string) (*tracking.BatchOutcome, error)
	SyncAll(ctx context.Context, userID string) (*tracking.SyncAllResult, error)
	RegisterWebhook(ctx context.Context, trackingNumbers []string, userID string) (*tracking.WebhookResult, error)
}

type WatcherService interface {
	CheckProduct(ctx context.Context, userID, monitoringID string) (*watcher.CheckResult, error)
	CheckAllProducts(ctx context.Context, userID string) (*watcher.SweepResult, error)
	UpdateConfig(ctx context.Context, userID, monitoringID string, f pgstore.MonitoringUpdateFields) (*models.MonitoringConfig, error)
	GetDashboardStats(ctx context.Context, userID string) (*watcher.DashboardStats, error)
}

type SupplierService interface {
	ValidateCredentials(ctx context.Context, supplierType string, creds map[string]string) (*suppliers.ValidationResult, error)
	SaveCredentials(ctx context.Context, userID, supplierID, supplierType string, creds map[string]string) (*models.SupplierCredential, *suppliers.ValidationResult, error)
	TestConnection(ctx context.Context, userID, supplierID string) (*suppliers.ValidationResult, error)
	GetProducts(ctx context.Context, userID, supplierID, supplierType string, page, limit int) (*suppliers.ProductsResult, error)
	GetInventory(ctx context.Context, userID, supplierID, supplierType string, skus []string) ([]models.InventoryUpdate, error)
}

// API — HTTP-слой callable-операций: три эндпоинта с action-дискриминатором
// в теле. Личность вызывающего приходит только в заголовке X-User-Id.
type API struct {
	tracking TrackingService
	watcher  WatcherService
	supplier SupplierService
	validate *validator.Validate
	log      *slog.Logger
}

func New(tr TrackingService, w WatcherService, sup SupplierService, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{
		tracking: tr,
		watcher:  w,
		supplier: sup,
		validate: validator.New(),
		log:      log,
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/functions/v1", func(r chi.Router) {
		r.Post("/carrier-tracking", a.handleCarrierTracking)
		r.Post("/stock-monitor", a.handleStockMonitor)
		r.Post("/supplier-connector", a.handleSupplierConnector)
	})
	return r
}

// envelope — общая часть тела запроса. user_id в теле запрещён:
// подмена личности через body была бы обходом заголовка.
type envelope struct {
	Action string          `json:"action"`
	UserID json.RawMessage `json:"user_id"`
}

func (a *API) readRequest(w http.ResponseWriter, r *http.Request) (string, string, []byte, bool) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		a.writeError(w, http.StatusUnauthorized, "en-tête X-User-Id manquant")
		return "", "", nil, false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "corps de requête illisible")
		return "", "", nil, false
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		a.writeError(w, http.StatusBadRequest, "JSON invalide")
		return "", "", nil, false
	}
	if env.Action == "" {
		a.writeError(w, http.StatusBadRequest, "champ action requis")
		return "", "", nil, false
	}
	if len(env.UserID) > 0 {
		a.writeError(w, http.StatusBadRequest, "user_id n'est pas accepté dans le corps de la requête")
		return "", "", nil, false
	}
	return userID, env.Action, body, true
}

func (a *API) decode(w http.ResponseWriter, body []byte, dst any) bool {
	if err := json.Unmarshal(body, dst); err != nil {
		a.writeError(w, http.StatusBadRequest, "JSON invalide")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

type trackSingleRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required"`
}

type trackBatchRequest struct {
	TrackingNumbers []string `json:"tracking_numbers" validate:"required,min=1,dive,required"`
}

func (a *API) handleCarrierTracking(w http.ResponseWriter, r *http.Request) {
	userID, action, body, ok := a.readRequest(w, r)
	if !ok {
		return
	}

	switch action {
	case "track_single":
		var req trackSingleRequest
		if !a.decode(w, body, &req) {
			return
		}
		res, err := a.tracking.TrackSingle(r.Context(), req.TrackingNumber, userID)
		a.respond(w, res, err)

	case "track_batch":
		var req trackBatchRequest
		if !a.decode(w, body, &req) {
			return
		}
		res, err := a.tracking.TrackBatch(r.Context(), req.TrackingNumbers, userID)
		a.respond(w, res, err)

	case "sync_all":
		res, err := a.tracking.SyncAll(r.Context(), userID)
		a.respond(w, res, err)

	case "register_webhook":
		var req trackBatchRequest
		if !a.decode(w, body, &req) {
			return
		}
		res, err := a.tracking.RegisterWebhook(r.Context(), req.TrackingNumbers, userID)
		a.respond(w, res, err)

	default:
		a.writeError(w, http.StatusBadRequest, "action inconnue : "+action)
	}
}

type checkProductRequest struct {
	MonitoringID string `json:"monitoring_id" validate:"required"`
}

type updateConfigRequest struct {
	MonitoringID string `json:"monitoring_id" validate:"required"`
	Config       struct {
		MonitorStock             *bool    `json:"monitor_stock"`
		MonitorPrice             *bool    `json:"monitor_price"`
		MinStockThreshold        *float64 `json:"min_stock_threshold"`
		MaxPriceVariationPercent *float64 `json:"max_price_variation_percent"`
		StockSyncEnabled         *bool    `json:"stock_sync_enabled"`
		PriceSyncEnabled         *bool    `json:"price_sync_enabled"`
		Status                   *string  `json:"status"`
		CheckFrequencyMinutes    *int     `json:"check_frequency_minutes"`
	} `json:"config"`
}

func (a *API) handleStockMonitor(w http.ResponseWriter, r *http.Request) {
	userID, action, body, ok := a.readRequest(w, r)
	if !ok {
		return
	}

	switch action {
	case "check_product":
		var req checkProductRequest
		if !a.decode(w, body, &req) {
			return
		}
		res, err := a.watcher.CheckProduct(r.Context(), userID, req.MonitoringID)
		a.respond(w, res, err)

	case "check_all":
		res, err := a.watcher.CheckAllProducts(r.Context(), userID)
		a.respond(w, res, err)

	case "update_config":
		var req updateConfigRequest
		if !a.decode(w, body, &req) {
			return
		}
		res, err := a.watcher.UpdateConfig(r.Context(), userID, req.MonitoringID, pgstore.MonitoringUpdateFields{
			MonitorStock:             req.Config.MonitorStock,
			MonitorPrice:             req.Config.MonitorPrice,
			MinStockThreshold:        req.Config.MinStockThreshold,
			MaxPriceVariationPercent: req.Config.MaxPriceVariationPercent,
			StockSyncEnabled:         req.Config.StockSyncEnabled,
			PriceSyncEnabled:         req.Config.PriceSyncEnabled,
			Status:                   req.Config.Status,
			CheckFrequencyMinutes:    req.Config.CheckFrequencyMinutes,
		})
		a.respond(w, res, err)

	case "get_dashboard_stats":
		res, err := a.watcher.GetDashboardStats(r.Context(), userID)
		a.respond(w, res, err)

	default:
		a.writeError(w, http.StatusBadRequest, "action inconnue : "+action)
	}
}

type validateCredentialsRequest struct {
	SupplierType string            `json:"supplier_type" validate:"required"`
	Credentials  map[string]string `json:"credentials" validate:"required,min=1"`
}

type saveCredentialsRequest struct {
	SupplierID   string            `json:"supplier_id" validate:"required"`
	SupplierType string            `json:"supplier_type" validate:"required"`
	Credentials  map[string]string `json:"credentials" validate:"required,min=1"`
}

type testConnectionRequest struct {
	SupplierID string `json:"supplier_id" validate:"required"`
}

type getProductsRequest struct {
	SupplierID   string `json:"supplier_id"`
	SupplierType string `json:"supplier_type" validate:"required"`
	Page         int    `json:"page" validate:"omitempty,min=1"`
	Limit        int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

type getInventoryRequest struct {
	SupplierID   string   `json:"supplier_id"`
	SupplierType string   `json:"supplier_type" validate:"required"`
	SKUs         []string `json:"skus" validate:"required,min=1,dive,required"`
}

func (a *API) handleSupplierConnector(w http.ResponseWriter, r *http.Request) {
	userID, action, body, ok := a.readRequest(w, r)
	if !ok {
		return
	}

	switch action {
	case "validate_credentials":
		var req validateCredentialsRequest
		if !a.decode(w, body, &req) {
			return
		}
		res, err := a.supplier.ValidateCredentials(r.Context(), req.SupplierType, req.Credentials)
		a.respond(w, res, err)

	case "save_credentials":
		var req saveCredentialsRequest
		if !a.decode(w, body, &req) {
			return
		}
		cred, check, err := a.supplier.SaveCredentials(r.Context(), userID, req.SupplierID, req.SupplierType, req.Credentials)
		if err != nil {
			a.respond(w, nil, err)
			return
		}
		a.respond(w, map[string]any{
			"credential_id":     cred.ID,
			"validation_status": cred.ValidationStatus,
			"check":             check,
		}, nil)

	case "test_connection":
		var req testConnectionRequest
		if !a.decode(w, body, &req) {
			return
		}
		res, err := a.supplier.TestConnection(r.Context(), userID, req.SupplierID)
		a.respond(w, res, err)

	case "get_products":
		var req getProductsRequest
		if !a.decode(w, body, &req) {
			return
		}
		if req.Page == 0 {
			req.Page = 1
		}
		if req.Limit == 0 {
			req.Limit = 50
		}
		res, err := a.supplier.GetProducts(r.Context(), userID, req.SupplierID, req.SupplierType, req.Page, req.Limit)
		a.respond(w, res, err)

	case "get_inventory":
		var req getInventoryRequest
		if !a.decode(w, body, &req) {
			return
		}
		res, err := a.supplier.GetInventory(r.Context(), userID, req.SupplierID, req.SupplierType, req.SKUs)
		a.respond(w, res, err)

	case "list_connectors":
		type connectorInfo struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		var out []connectorInfo
		for _, c := range suppliers.ListConnectors() {
			out = append(out, connectorInfo{ID: c.ID, Name: c.Name})
		}
		a.respond(w, out, nil)

	default:
		a.writeError(w, http.StatusBadRequest, "action inconnue : "+action)
	}
}

func (a *API) respond(w http.ResponseWriter, data any, err error) {
	if err == nil {
		a.writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
		return
	}

	switch {
	case errors.Is(err, pgstore.ErrMonitoringNotFound),
		errors.Is(err, pgstore.ErrCredentialNotFound):
		a.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, watcher.ErrCheckInProgress):
		a.writeError(w, http.StatusConflict, err.Error())
	default:
		a.log.Error("request failed", "error", err.Error())
		a.writeError(w, http.StatusInternalServerError, "erreur interne")
	}
}

func (a *API) writeError(w http.ResponseWriter, code int, msg string) {
	a.writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

func (a *API) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("response encode failed", "error", err.Error())
	}
}
