package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropsync/dropsync/internal/services/tracking"
	"github.com/dropsync/dropsync/internal/services/watcher"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	monitorUsers  []string
	shipmentUsers []string
	monitorErr    error
	shipmentErr   error
	calls         int
	lastLimit     int
}

func (f *fakeUsers) ListUsersWithActiveMonitorings(_ context.Context, limit int) ([]string, error) {
	f.calls++
	f.lastLimit = limit
	return f.monitorUsers, f.monitorErr
}

func (f *fakeUsers) ListUsersWithActiveShipments(_ context.Context, limit int) ([]string, error) {
	return f.shipmentUsers, f.shipmentErr
}

type fakeMonitor struct {
	mu      sync.Mutex
	checked []string
	res     map[string]*watcher.SweepResult
	err     map[string]error
}

func (f *fakeMonitor) CheckAllProducts(_ context.Context, userID string) (*watcher.SweepResult, error) {
	f.mu.Lock()
	f.checked = append(f.checked, userID)
	f.mu.Unlock()
	if err := f.err[userID]; err != nil {
		return nil, err
	}
	if r := f.res[userID]; r != nil {
		return r, nil
	}
	return &watcher.SweepResult{}, nil
}

type fakeShipments struct {
	mu     sync.Mutex
	synced []string
	res    map[string]*tracking.SyncAllResult
}

func (f *fakeShipments) SyncAll(_ context.Context, userID string) (*tracking.SyncAllResult, error) {
	f.mu.Lock()
	f.synced = append(f.synced, userID)
	f.mu.Unlock()
	if r := f.res[userID]; r != nil {
		return r, nil
	}
	return &tracking.SyncAllResult{}, nil
}

func TestSweeper_runOnce_AggregatesCounters(t *testing.T) {
	users := &fakeUsers{
		monitorUsers:  []string{"user-1", "user-2"},
		shipmentUsers: []string{"user-1"},
	}
	monitor := &fakeMonitor{res: map[string]*watcher.SweepResult{
		"user-1": {Total: 3, WithChanges: 1, TotalChanges: 2, TotalAlerts: 1},
		"user-2": {Total: 2, Failed: 1},
	}}
	shipments := &fakeShipments{res: map[string]*tracking.SyncAllResult{
		"user-1": {Synced: 4, Errors: []tracking.TrackingError{{TrackingNumber: "LP1", Error: "boom"}}},
	}}

	s := New(users, monitor, shipments).WithSettings(time.Minute, 2, 50)
	s.runOnce(context.Background())

	require.ElementsMatch(t, []string{"user-1", "user-2"}, monitor.checked)
	require.Equal(t, []string{"user-1"}, shipments.synced)
	require.Equal(t, 50, users.lastLimit)

	st := s.Stats()
	require.Equal(t, int64(2), st.TotalUsers)
	require.Equal(t, int64(5), st.TotalChecks)
	require.Equal(t, int64(4), st.TotalSynced)
	// 1 failed check + 1 tracking error.
	require.Equal(t, int64(2), st.TotalErrors)
	require.Equal(t, int64(0), st.InFlight)
	require.NotNil(t, st.LastCycleAt)
}

func TestSweeper_runOnce_UserFailureIsIsolated(t *testing.T) {
	users := &fakeUsers{monitorUsers: []string{"user-1", "user-2"}}
	monitor := &fakeMonitor{err: map[string]error{"user-1": errors.New("db down")}}
	s := New(users, monitor, &fakeShipments{})
	s.runOnce(context.Background())

	require.ElementsMatch(t, []string{"user-1", "user-2"}, monitor.checked)
	st := s.Stats()
	require.Equal(t, int64(1), st.TotalErrors)
	require.Equal(t, "db down", st.LastError)
}

func TestSweeper_runOnce_ListErrorStillSweepsShipments(t *testing.T) {
	users := &fakeUsers{
		monitorErr:    errors.New("pg timeout"),
		shipmentUsers: []string{"user-9"},
	}
	shipments := &fakeShipments{}
	s := New(users, &fakeMonitor{}, shipments)
	s.runOnce(context.Background())

	require.Equal(t, []string{"user-9"}, shipments.synced)
	require.Equal(t, int64(1), s.Stats().TotalErrors)
}

func TestSweeper_Trigger_NonBlocking(t *testing.T) {
	s := New(&fakeUsers{}, &fakeMonitor{}, &fakeShipments{})
	s.Trigger()
	s.Trigger()
	s.Trigger()
	require.NotNil(t, s.Stats().LastTriggerAt)
}

func TestSweeper_WithSettings(t *testing.T) {
	s := New(&fakeUsers{}, &fakeMonitor{}, &fakeShipments{}).
		WithSettings(7*time.Second, 3, 11)
	require.Equal(t, 7*time.Second, s.sweepInterval)
	require.Equal(t, 3, s.concurrency)
	require.Equal(t, 11, s.userPageSize)
}

func TestSweeper_Run_StopsOnContextCancel(t *testing.T) {
	users := &fakeUsers{}
	s := New(users, &fakeMonitor{}, &fakeShipments{}).
		WithSettings(5*time.Millisecond, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := s.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, users.calls, 1)
}
