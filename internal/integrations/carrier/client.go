package carrier

import "context"

// TrackInfo — сырой ответ провайдера по одному принятому номеру.
// Короткие ключи (w1, e, z0, z1, z2) — проводной формат провайдера,
// это внешний версионируемый контракт, не переименовывать.
type TrackInfo struct {
	W1 int `json:"w1"` // carrier numeric code
	E  int `json:"e"`  // package status numeric code

	Z0 *WireEvent  `json:"z0,omitempty"` // latest event
	Z1 []WireEvent `json:"z1,omitempty"` // full event list, oldest-first
	Z2 *WireDest   `json:"z2,omitempty"`

	Ygt1 string `json:"ygt1,omitempty"` // origin country
	Ylt1 string `json:"ylt1,omitempty"` // destination country
}

type WireEvent struct {
	A string `json:"a"` // timestamp
	C string `json:"c"` // location
	D string `json:"d"` // status short code
	Z string `json:"z"` // description
}

type WireDest struct {
	A string `json:"a,omitempty"` // estimated delivery date
	D string `json:"d,omitempty"`
}

// AcceptedItem / RejectedItem — элементы batch-ответа провайдера.
type AcceptedItem struct {
	Number string    `json:"number"`
	Track  TrackInfo `json:"track"`
}

type RejectedItem struct {
	Number string        `json:"number"`
	Error  RejectedError `json:"error"`
}

type RejectedError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type BatchResult struct {
	Accepted []AcceptedItem
	Rejected []RejectedItem
}

// Client — клиент провайдера трекинга.
type Client interface {
	// GetTrackInfo запрашивает статусы пачки номеров (до 40 за вызов).
	GetTrackInfo(ctx context.Context, numbers []string) (BatchResult, error)
	// RegisterWebhook регистрирует push-уведомления по номерам.
	RegisterWebhook(ctx context.Context, numbers []string) (BatchResult, error)
}
