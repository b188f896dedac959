package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dropsync/dropsync/internal/integrations/carrier"
	"github.com/dropsync/dropsync/internal/models"
	"github.com/dropsync/dropsync/internal/storage/pgstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls      [][]string
	callTimes  []time.Time
	rejectAll  bool
	failCall   int // 1-based номер вызова, который вернёт ошибку; 0 — никогда
	statusCode int
}

func (c *fakeClient) GetTrackInfo(_ context.Context, numbers []string) (carrier.BatchResult, error) {
	c.calls = append(c.calls, append([]string{}, numbers...))
	c.callTimes = append(c.callTimes, time.Now())
	if c.failCall > 0 && len(c.calls) == c.failCall {
		return carrier.BatchResult{}, errors.New("provider unavailable")
	}

	var out carrier.BatchResult
	for _, n := range numbers {
		if c.rejectAll {
			out.Rejected = append(out.Rejected, carrier.RejectedItem{
				Number: n,
				Error:  carrier.RejectedError{Code: -18019901, Message: "Number not found"},
			})
			continue
		}
		code := c.statusCode
		if code == 0 {
			code = 10
		}
		out.Accepted = append(out.Accepted, carrier.AcceptedItem{
			Number: n,
			Track: carrier.TrackInfo{
				W1: 100001,
				E:  code,
				Z1: []carrier.WireEvent{
					{A: "2025-02-01 08:00:00", C: "Paris", D: "10", Z: "Pris en charge"},
					{A: "2025-02-02 09:30:00", C: "Lyon", D: "10", Z: "En transit"},
				},
			},
		})
	}
	return out, nil
}

func (c *fakeClient) RegisterWebhook(_ context.Context, numbers []string) (carrier.BatchResult, error) {
	c.calls = append(c.calls, append([]string{}, numbers...))
	var out carrier.BatchResult
	for i, n := range numbers {
		if i%2 == 0 {
			out.Accepted = append(out.Accepted, carrier.AcceptedItem{Number: n})
		} else {
			out.Rejected = append(out.Rejected, carrier.RejectedItem{Number: n})
		}
	}
	return out, nil
}

type fakeOrderRepo struct {
	updates   []pgstore.OrderTrackingUpdate
	active    []string
	applyErr  error
	listErr   error
	listLimit int
}

func (r *fakeOrderRepo) ApplyOrderTracking(_ context.Context, upd pgstore.OrderTrackingUpdate) error {
	if r.applyErr != nil {
		return r.applyErr
	}
	r.updates = append(r.updates, upd)
	return nil
}

func (r *fakeOrderRepo) ListActiveShipments(_ context.Context, _ string, limit int) ([]string, error) {
	r.listLimit = limit
	return r.active, r.listErr
}

type fakePub struct {
	topics []string
}

func (p *fakePub) Publish(_ context.Context, topic string, _, _ []byte) error {
	p.topics = append(p.topics, topic)
	return nil
}

func newTestService(client carrier.Client, repo Repository, pub Publisher) *Service {
	s := New(client, repo, pub, 0, slog.Default())
	s.now = func() time.Time { return time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC) }
	return s
}

func numbers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("TRK%05d", i)
	}
	return out
}

func TestTrackSingle_Success(t *testing.T) {
	repo := &fakeOrderRepo{}
	pub := &fakePub{}
	s := newTestService(&fakeClient{}, repo, pub)

	res, err := s.TrackSingle(context.Background(), "TRK00001", "user-1")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotNil(t, res.Data)
	require.Equal(t, models.TrackingStatusInTransit, res.Data.Status)
	// События перевёрнуты: свежее первым.
	require.Equal(t, "Lyon", res.Data.Events[0].Location)

	require.Len(t, repo.updates, 1)
	require.Equal(t, "user-1", repo.updates[0].UserID)
	require.Equal(t, models.DeliveryStatusInTransit, repo.updates[0].DeliveryStatus)
	require.Equal(t, []string{"tracking.synced"}, pub.topics)
}

func TestTrackSingle_RejectedIsStructuredFailure(t *testing.T) {
	repo := &fakeOrderRepo{}
	s := newTestService(&fakeClient{rejectAll: true}, repo, nil)

	res, err := s.TrackSingle(context.Background(), "TRKBAD", "user-1")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "Number not found")
	require.Empty(t, repo.updates)
}

func TestTrackSingle_EmptyNumber(t *testing.T) {
	s := newTestService(&fakeClient{}, &fakeOrderRepo{}, nil)
	_, err := s.TrackSingle(context.Background(), "", "user-1")
	require.Error(t, err)
}

func TestTrackSingle_DeliveredStampsOrder(t *testing.T) {
	repo := &fakeOrderRepo{}
	s := newTestService(&fakeClient{statusCode: 40}, repo, nil)

	res, err := s.TrackSingle(context.Background(), "TRK00001", "user-1")
	require.NoError(t, err)
	require.Equal(t, models.TrackingStatusDelivered, res.Data.Status)

	require.Len(t, repo.updates, 1)
	require.True(t, repo.updates[0].Delivered)
	require.NotNil(t, repo.updates[0].DeliveredAt)
	require.Equal(t, models.DeliveryStatusDelivered, repo.updates[0].DeliveryStatus)
}

func TestTrackSingle_PersistFailureDoesNotFail(t *testing.T) {
	repo := &fakeOrderRepo{applyErr: errors.New("db down")}
	s := newTestService(&fakeClient{}, repo, nil)

	res, err := s.TrackSingle(context.Background(), "TRK00001", "user-1")
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestTrackBatch_PartitionsIntoProviderChunks(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(client, &fakeOrderRepo{}, nil)

	out, err := s.TrackBatch(context.Background(), numbers(85), "user-1")
	require.NoError(t, err)

	require.Len(t, client.calls, 3)
	require.Len(t, client.calls[0], 40)
	require.Len(t, client.calls[1], 40)
	require.Len(t, client.calls[2], 5)
	require.Equal(t, 85, len(out.Results)+len(out.Errors))
	require.Empty(t, out.Errors)
}

func TestTrackBatch_DelaySpacesEveryChunk(t *testing.T) {
	client := &fakeClient{}
	s := New(client, &fakeOrderRepo{}, nil, 30*time.Millisecond, slog.Default())

	_, err := s.TrackBatch(context.Background(), numbers(85), "user-1")
	require.NoError(t, err)

	require.Len(t, client.callTimes, 3)
	// Пауза должна держаться уже между первым и вторым пакетом,
	// а не только начиная с третьего.
	require.GreaterOrEqual(t, client.callTimes[1].Sub(client.callTimes[0]), 25*time.Millisecond)
	require.GreaterOrEqual(t, client.callTimes[2].Sub(client.callTimes[1]), 25*time.Millisecond)
}

func TestTrackBatch_FailedChunkIsIsolated(t *testing.T) {
	client := &fakeClient{failCall: 2}
	s := newTestService(client, &fakeOrderRepo{}, nil)

	out, err := s.TrackBatch(context.Background(), numbers(85), "user-1")
	require.NoError(t, err)

	require.Len(t, client.calls, 3)
	require.Len(t, out.Results, 45)
	require.Len(t, out.Errors, 40)
	for _, e := range out.Errors {
		require.Contains(t, e.Error, "provider unavailable")
	}
}

func TestTrackBatch_MixedAcceptedRejected(t *testing.T) {
	client := &fakeClient{rejectAll: true}
	s := newTestService(client, &fakeOrderRepo{}, nil)

	out, err := s.TrackBatch(context.Background(), []string{"A", "B"}, "user-1")
	require.NoError(t, err)
	require.Empty(t, out.Results)
	require.Len(t, out.Errors, 2)
	require.Equal(t, "A", out.Errors[0].TrackingNumber)
}

func TestTrackBatch_Empty(t *testing.T) {
	s := newTestService(&fakeClient{}, &fakeOrderRepo{}, nil)
	_, err := s.TrackBatch(context.Background(), nil, "user-1")
	require.Error(t, err)
}

func TestSyncAll_ZeroShipmentsIsSuccess(t *testing.T) {
	client := &fakeClient{}
	s := newTestService(client, &fakeOrderRepo{}, nil)

	res, err := s.SyncAll(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 0, res.Synced)
	require.Empty(t, client.calls)
}

func TestSyncAll_DelegatesToBatch(t *testing.T) {
	client := &fakeClient{}
	repo := &fakeOrderRepo{active: numbers(3)}
	s := newTestService(client, repo, nil)

	res, err := s.SyncAll(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 3, res.Synced)
	require.Equal(t, 100, repo.listLimit)
}

func TestRegisterWebhook_CountsPartialRejections(t *testing.T) {
	s := newTestService(&fakeClient{}, &fakeOrderRepo{}, nil)

	res, err := s.RegisterWebhook(context.Background(), numbers(5), "user-1")
	require.NoError(t, err)
	require.Equal(t, 3, res.Accepted)
	require.Equal(t, 2, res.Rejected)
}

func TestStatusToDeliveryMapping(t *testing.T) {
	cases := map[string]string{
		models.TrackingStatusPending:        models.DeliveryStatusPending,
		models.TrackingStatusInfoReceived:   models.DeliveryStatusPending,
		models.TrackingStatusInTransit:      models.DeliveryStatusInTransit,
		models.TrackingStatusOutForDelivery: models.DeliveryStatusOutForDelivery,
		models.TrackingStatusDelivered:      models.DeliveryStatusDelivered,
		models.TrackingStatusException:      models.DeliveryStatusFailed,
		models.TrackingStatusExpired:        models.DeliveryStatusFailed,
	}
	for in, want := range cases {
		require.Equal(t, want, statusToDelivery[in], in)
	}
}
