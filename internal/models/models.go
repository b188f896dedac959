package models

import "time"

// Нормализованные статусы трекинга (закрытый набор).
const (
	TrackingStatusPending        = "pending"
	TrackingStatusInfoReceived   = "info_received"
	TrackingStatusInTransit      = "in_transit"
	TrackingStatusOutForDelivery = "out_for_delivery"
	TrackingStatusDelivered      = "delivered"
	TrackingStatusException      = "exception"
	TrackingStatusExpired        = "expired"
)

// Статусы доставки на стороне заказа.
const (
	DeliveryStatusPending        = "pending"
	DeliveryStatusInTransit      = "in_transit"
	DeliveryStatusOutForDelivery = "out_for_delivery"
	DeliveryStatusDelivered      = "delivered"
	DeliveryStatusFailed         = "failed"
)

// TrackingEvent — одно событие перевозчика. Неизменяемо после записи,
// потребители получают список от самого нового к самому старому.
type TrackingEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Location    string    `json:"location"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
}

// TrackingResult — канонический снимок трекинга по одному отправлению.
// Создаётся заново на каждый опрос провайдера, никогда не мутируется.
type TrackingResult struct {
	TrackingNumber     string          `json:"trackingNumber"`
	Carrier            string          `json:"carrier"`
	CarrierCode        int             `json:"carrierCode"`
	Status             string          `json:"status"`
	StatusDescription  string          `json:"statusDescription"`
	Events             []TrackingEvent `json:"events"`
	EstimatedDelivery  *time.Time      `json:"estimatedDelivery,omitempty"`
	OriginCountry      string          `json:"originCountry,omitempty"`
	DestinationCountry string          `json:"destinationCountry,omitempty"`
	LastUpdate         time.Time       `json:"lastUpdate"`
}

type Order struct {
	ID                    string
	UserID                string
	TrackingNumber        *string
	Carrier               *string
	DeliveryStatus        string
	FulfillmentStatus     string
	EstimatedDeliveryDate *time.Time
	DeliveredAt           *time.Time
	UpdatedAt             time.Time
}

// Типы маржи для расчёта цены маркетплейса.
const (
	MarginTypeFixed      = "fixed"
	MarginTypePercentage = "percentage"
	MarginTypeFormula    = "formula"
)

// Статусы конфигурации мониторинга.
const (
	MonitoringStatusActive = "active"
	MonitoringStatusPaused = "paused"
	MonitoringStatusError  = "error"
)

// MonitoringConfig — долговременная конфигурация наблюдения за товаром.
// Поля SupplierStock/SupplierPrice — базовая линия для диффа, всегда
// отражают последние успешно полученные значения.
type MonitoringConfig struct {
	ID                       string
	UserID                   string
	ProductID                string
	MarketplaceIntegrationID *string
	MonitorStock             bool
	MonitorPrice             bool
	MinStockThreshold        *float64
	MaxPriceVariationPercent *float64
	StockSyncEnabled         bool
	PriceSyncEnabled         bool
	MarginType               string
	MarginValue              float64
	PriceFormula             string
	SupplierID               string
	SupplierSKU              string
	SupplierStock            *float64
	SupplierPrice            *float64
	Status                   string
	LastCheckedAt            *time.Time
	LastSyncedAt             *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

const (
	ChangeTypeStock = "stock"
	ChangeTypePrice = "price"
)

// StockPriceChange — неизменяемая запись аудита об одном обнаруженном дельте.
type StockPriceChange struct {
	ID              string
	MonitoringID    string
	ProductID       string
	ChangeType      string
	OldValue        float64
	NewValue        float64
	ChangePercent   float64
	AutoSyncApplied bool
	SyncResult      string
	AlertTriggered  bool
	DetectedAt      time.Time
	SyncedAt        *time.Time
}

// Типы алертов мониторинга.
const (
	AlertTypeStockLow            = "stock_low"
	AlertTypeStockOut            = "stock_out"
	AlertTypePriceChange         = "price_change"
	AlertTypeSyncError           = "sync_error"
	AlertTypeSupplierUnavailable = "supplier_unavailable"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// AlertSeverity выводится детерминированно из типа алерта.
func AlertSeverity(alertType string) string {
	switch alertType {
	case AlertTypeStockOut:
		return SeverityCritical
	case AlertTypeStockLow:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

type MonitoringAlert struct {
	ID           string
	MonitoringID string
	ProductID    string
	Marketplace  string
	AlertType    string
	Severity     string
	Title        string
	Message      string
	Read         bool
	Resolved     bool
	CreatedAt    time.Time
}

// Статусы валидации креденшалов поставщика.
const (
	ValidationStatusValid       = "valid"
	ValidationStatusInvalid     = "invalid"
	ValidationStatusUnvalidated = "unvalidated"
)

// SupplierCredential — креденшалы поставщика, зашифрованные at rest.
type SupplierCredential struct {
	ID               string
	UserID           string
	SupplierID       string
	SupplierType     string
	Encrypted        []byte
	ValidationStatus string
	LastValidatedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SupplierProduct — канонический товарный кортеж коннектора поставщика.
type SupplierProduct struct {
	ID       string  `json:"id"`
	SKU      string  `json:"sku"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Cost     float64 `json:"cost"`
	Stock    int     `json:"stock"`
	Image    string  `json:"image,omitempty"`
	Category string  `json:"category,omitempty"`
}

// InventoryUpdate — инкрементальная дельта остатка по SKU.
type InventoryUpdate struct {
	SKU     string    `json:"sku"`
	Stock   int       `json:"stock"`
	Updated time.Time `json:"updated"`
}

type MarketplaceIntegration struct {
	ID       string
	UserID   string
	Platform string
	ShopURL  string
	Status   string
}

type Notification struct {
	ID        string
	UserID    string
	Kind      string
	Title     string
	Message   string
	CreatedAt time.Time
}
