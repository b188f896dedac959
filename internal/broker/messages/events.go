package messages

import "time"

// Топики событийной шины.
const (
	TopicMonitoringAlert = "monitoring.alert"
	TopicTrackingSynced  = "tracking.synced"
)

// MonitoringAlertEvent публикуется вотчером при создании алерта.
type MonitoringAlertEvent struct {
	AlertID      string    `json:"alert_id"`
	MonitoringID string    `json:"monitoring_id"`
	UserID       string    `json:"user_id"`
	ProductID    string    `json:"product_id"`
	AlertType    string    `json:"alert_type"`
	Severity     string    `json:"severity"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
}

// TrackingSyncedEvent публикуется оркестратором после применения
// трекинг-снапшота к заказу.
type TrackingSyncedEvent struct {
	TrackingNumber string    `json:"tracking_number"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	DeliveryStatus string    `json:"delivery_status"`
	EventCount     int       `json:"event_count"`
	SyncedAt       time.Time `json:"synced_at"`
}
