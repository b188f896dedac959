package carrier

import (
	"testing"
	"time"

	"github.com/dropsync/dropsync/internal/models"
	"github.com/stretchr/testify/require"
)

var canonicalStatuses = map[string]bool{
	models.TrackingStatusPending:        true,
	models.TrackingStatusInfoReceived:   true,
	models.TrackingStatusInTransit:      true,
	models.TrackingStatusOutForDelivery: true,
	models.TrackingStatusDelivered:      true,
	models.TrackingStatusException:      true,
	models.TrackingStatusExpired:        true,
}

func TestStatusFromCode_Total(t *testing.T) {
	// Все целые коды, включая незнакомые, дают значение закрытого enum.
	for code := -5; code <= 200; code++ {
		s := StatusFromCode(code)
		require.True(t, canonicalStatuses[s], "code %d -> %q", code, s)
	}
	require.Equal(t, models.TrackingStatusPending, StatusFromCode(999999))
	require.Equal(t, models.TrackingStatusDelivered, StatusFromCode(40))
	require.Equal(t, models.TrackingStatusExpired, StatusFromCode(20))
}

func TestCarrierName_Fallback(t *testing.T) {
	require.Equal(t, "La Poste - Colissimo", CarrierName(6051))
	require.Equal(t, "Carrier 424242", CarrierName(424242))
}

func TestStatusDescription_Fallback(t *testing.T) {
	require.Equal(t, "Colis livré", StatusDescription(models.TrackingStatusDelivered))
	require.Equal(t, "Statut inconnu", StatusDescription("weird"))
}

func TestNormalize_ReversesEvents(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	info := TrackInfo{
		W1: 6051,
		E:  10,
		Z1: []WireEvent{
			{A: "2025-02-01 08:00:00", C: "Paris", D: "GTMS", Z: "e1"},
			{A: "2025-02-02 09:00:00", C: "Lyon", D: "GTMS", Z: "e2"},
			{A: "2025-02-03 10:00:00", C: "Nice", D: "GTMS", Z: "e3"},
		},
	}

	res := Normalize("LX123", info, now)
	require.Len(t, res.Events, 3)
	require.Equal(t, "e3", res.Events[0].Description)
	require.Equal(t, "e2", res.Events[1].Description)
	require.Equal(t, "e1", res.Events[2].Description)

	// lastUpdate = время самого нового события после разворота.
	require.Equal(t, time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC), res.LastUpdate)
	require.Equal(t, models.TrackingStatusInTransit, res.Status)
	require.Equal(t, "Colis en transit", res.StatusDescription)
	require.Equal(t, "La Poste - Colissimo", res.Carrier)
	require.Equal(t, 6051, res.CarrierCode)
}

func TestNormalize_NoEvents_LastUpdateIsNow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	res := Normalize("LX0", TrackInfo{E: 0}, now)
	require.Empty(t, res.Events)
	require.Equal(t, now, res.LastUpdate)
	require.Equal(t, models.TrackingStatusPending, res.Status)
}

func TestNormalize_EstimatedDeliveryAndCountries(t *testing.T) {
	now := time.Now().UTC()
	info := TrackInfo{
		E:    40,
		Z2:   &WireDest{A: "2025-02-10"},
		Ygt1: "CN",
		Ylt1: "FR",
	}
	res := Normalize("LX1", info, now)
	require.NotNil(t, res.EstimatedDelivery)
	require.Equal(t, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), *res.EstimatedDelivery)
	require.Equal(t, "CN", res.OriginCountry)
	require.Equal(t, "FR", res.DestinationCountry)
}

func TestNormalize_BadEventTimeFallsBackToNow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	info := TrackInfo{E: 10, Z1: []WireEvent{{A: "not-a-date", Z: "e1"}}}
	res := Normalize("LX2", info, now)
	require.Equal(t, now, res.Events[0].Timestamp)
}

func TestNormalize_Deterministic(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	info := TrackInfo{W1: 2151, E: 50, Z1: []WireEvent{{A: "2025-02-01 08:00:00", Z: "x"}}}
	a := Normalize("LX3", info, now)
	b := Normalize("LX3", info, now)
	require.Equal(t, a, b)
}
