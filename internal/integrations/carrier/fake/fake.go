package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/dropsync/dropsync/internal/integrations/carrier"
)

// FakeClient — детерминированная заглушка провайдера трекинга для демо и тестов.
// Статус выводится из хэша номера: часть посылок "доставлена", часть в пути.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) GetTrackInfo(ctx context.Context, numbers []string) (carrier.BatchResult, error) {
	var res carrier.BatchResult
	now := time.Now().UTC()

	for _, n := range numbers {
		if strings.HasPrefix(n, "BAD") {
			rej := carrier.RejectedItem{Number: n}
			rej.Error.Code = -18019901
			rej.Error.Message = "Number not found"
			res.Rejected = append(res.Rejected, rej)
			continue
		}

		h := fnv.New32a()
		_, _ = h.Write([]byte(n))
		v := h.Sum32()

		// 20% доставлено, 10% инцидент, остальное в пути.
		status := 10
		switch {
		case v%5 == 0:
			status = 40
		case v%10 == 9:
			status = 50
		}

		events := []carrier.WireEvent{
			{
				A: now.Add(-48 * time.Hour).Format("2006-01-02 15:04:05"),
				C: "Shenzhen",
				D: "GTMS",
				Z: "Colis pris en charge",
			},
			{
				A: now.Add(-2 * time.Hour).Format("2006-01-02 15:04:05"),
				C: fmt.Sprintf("Hub %d", v%9),
				D: "GTMS",
				Z: "Colis en transit",
			},
		}

		res.Accepted = append(res.Accepted, carrier.AcceptedItem{
			Number: n,
			Track: carrier.TrackInfo{
				W1: 6051,
				E:  status,
				Z1: events,
			},
		})
	}
	return res, nil
}

func (f *FakeClient) RegisterWebhook(ctx context.Context, numbers []string) (carrier.BatchResult, error) {
	var res carrier.BatchResult
	for _, n := range numbers {
		if strings.HasPrefix(n, "BAD") {
			rej := carrier.RejectedItem{Number: n}
			rej.Error.Code = -18019902
			rej.Error.Message = "Register failed"
			res.Rejected = append(res.Rejected, rej)
			continue
		}
		res.Accepted = append(res.Accepted, carrier.AcceptedItem{Number: n})
	}
	return res, nil
}
