package carrier

import (
	"fmt"
	"time"

	"github.com/dropsync/dropsync/internal/models"
)

// statusByCode — фиксированная таблица: числовой код провайдера -> канонический статус.
// Коды вне таблицы осознанно маппятся в pending: набор кодов провайдера растёт,
// незнакомый код не должен ронять нормализацию.
var statusByCode = map[int]string{
	0:  models.TrackingStatusPending,
	1:  models.TrackingStatusInfoReceived,
	10: models.TrackingStatusInTransit,
	20: models.TrackingStatusExpired,
	30: models.TrackingStatusOutForDelivery,
	35: models.TrackingStatusPending,
	40: models.TrackingStatusDelivered,
	50: models.TrackingStatusException,
}

var carrierByCode = map[int]string{
	2151:   "Chronopost",
	3011:   "China Post",
	6051:   "La Poste - Colissimo",
	7041:   "Yanwen",
	100001: "UPS",
	100002: "FedEx",
	100003: "DHL Express",
	190008: "Cainiao",
	190094: "Mondial Relay",
}

// Описания статусов для оператора (интерфейс локализован на французский).
var statusDescriptions = map[string]string{
	models.TrackingStatusPending:        "En attente de prise en charge",
	models.TrackingStatusInfoReceived:   "Informations reçues par le transporteur",
	models.TrackingStatusInTransit:      "Colis en transit",
	models.TrackingStatusOutForDelivery: "En cours de livraison",
	models.TrackingStatusDelivered:      "Colis livré",
	models.TrackingStatusException:      "Incident de livraison",
	models.TrackingStatusExpired:        "Suivi expiré",
}

// StatusFromCode тотальна: любой код даёт значение закрытого enum.
func StatusFromCode(code int) string {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return models.TrackingStatusPending
}

func CarrierName(code int) string {
	if n, ok := carrierByCode[code]; ok {
		return n
	}
	return fmt.Sprintf("Carrier %d", code)
}

func StatusDescription(status string) string {
	if d, ok := statusDescriptions[status]; ok {
		return d
	}
	return "Statut inconnu"
}

// Форматы времени, встречающиеся у провайдера.
var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseEventTime(s string, fallback time.Time) time.Time {
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

// Normalize превращает сырой ответ провайдера в канонический снимок.
// Чистая функция: без I/O и побочных эффектов, на незнакомых кодах не паникует.
//
// События провайдера приходят от старых к новым; канонический порядок —
// от новых к старым. Разворот — жёсткий контракт, а не случайность.
func Normalize(trackingNumber string, info TrackInfo, now time.Time) models.TrackingResult {
	now = now.UTC()
	status := StatusFromCode(info.E)

	events := make([]models.TrackingEvent, 0, len(info.Z1))
	for i := len(info.Z1) - 1; i >= 0; i-- {
		we := info.Z1[i]
		events = append(events, models.TrackingEvent{
			Timestamp:   parseEventTime(we.A, now),
			Location:    we.C,
			Status:      we.D,
			Description: we.Z,
		})
	}

	lastUpdate := now
	if len(events) > 0 {
		lastUpdate = events[0].Timestamp
	}

	var estimated *time.Time
	if info.Z2 != nil && info.Z2.A != "" {
		if t, err := time.Parse("2006-01-02", info.Z2.A); err == nil {
			t = t.UTC()
			estimated = &t
		}
	}

	return models.TrackingResult{
		TrackingNumber:     trackingNumber,
		Carrier:            CarrierName(info.W1),
		CarrierCode:        info.W1,
		Status:             status,
		StatusDescription:  StatusDescription(status),
		Events:             events,
		EstimatedDelivery:  estimated,
		OriginCountry:      info.Ygt1,
		DestinationCountry: info.Ylt1,
		LastUpdate:         lastUpdate,
	}
}
