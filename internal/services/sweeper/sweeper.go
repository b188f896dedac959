package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropsync/dropsync/internal/services/tracking"
	"github.com/dropsync/dropsync/internal/services/watcher"
)

type UserDirectory interface {
	ListUsersWithActiveMonitorings(ctx context.Context, limit int) ([]string, error)
	ListUsersWithActiveShipments(ctx context.Context, limit int) ([]string, error)
}

type Monitor interface {
	CheckAllProducts(ctx context.Context, userID string) (*watcher.SweepResult, error)
}

type Shipments interface {
	SyncAll(ctx context.Context, userID string) (*tracking.SyncAllResult, error)
}

// Sweeper периодически обходит всех пользователей с активными мониторингами
// и незавершёнными отправлениями и прогоняет для каждого полный цикл сверки.
type Sweeper struct {
	users     UserDirectory
	monitor   Monitor
	shipments Shipments

	sweepInterval time.Duration
	concurrency   int
	userPageSize  int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalUsers          atomic.Int64
	totalChecks         atomic.Int64
	totalSynced         atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(users UserDirectory, monitor Monitor, shipments Shipments) *Sweeper {
	return &Sweeper{
		users: users, monitor: monitor, shipments: shipments,
		sweepInterval:     5 * time.Minute,
		concurrency:       4,
		userPageSize:      200,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Sweeper) WithSettings(sweepInterval time.Duration, concurrency, userPageSize int) *Sweeper {
	if sweepInterval > 0 {
		s.sweepInterval = sweepInterval
	}
	if concurrency > 0 {
		s.concurrency = concurrency
	}
	if userPageSize > 0 {
		s.userPageSize = userPageSize
	}
	return s
}

// Trigger forces an immediate sweep cycle (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalUsers    int64      `json:"totalUsers"`
	TotalChecks   int64      `json:"totalChecks"`
	TotalSynced   int64      `json:"totalSynced"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:   time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalUsers:  s.totalUsers.Load(),
		TotalChecks: s.totalChecks.Load(),
		TotalSynced: s.totalSynced.Load(),
		TotalErrors: s.totalErrors.Load(),
		InFlight:    s.inFlight.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	s.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())

	monitorUsers, err := s.users.ListUsersWithActiveMonitorings(ctx, s.userPageSize)
	if err != nil {
		s.fail("list users with monitorings", err)
	} else {
		s.totalUsers.Add(int64(len(monitorUsers)))
		s.forEach(ctx, monitorUsers, func(ctx context.Context, userID string) {
			res, err := s.monitor.CheckAllProducts(ctx, userID)
			if err != nil {
				s.fail("check all products", err, "user_id", userID)
				return
			}
			s.totalChecks.Add(int64(res.Total))
			s.totalErrors.Add(int64(res.Failed))
			if res.WithChanges > 0 {
				slog.Info("sweep detected changes",
					"user_id", userID, "with_changes", res.WithChanges, "alerts", res.TotalAlerts)
			}
		})
	}

	shipmentUsers, err := s.users.ListUsersWithActiveShipments(ctx, s.userPageSize)
	if err != nil {
		s.fail("list users with shipments", err)
		return
	}
	s.forEach(ctx, shipmentUsers, func(ctx context.Context, userID string) {
		res, err := s.shipments.SyncAll(ctx, userID)
		if err != nil {
			s.fail("sync shipments", err, "user_id", userID)
			return
		}
		s.totalSynced.Add(int64(res.Synced))
		if len(res.Errors) > 0 {
			s.totalErrors.Add(int64(len(res.Errors)))
			slog.Warn("sweep tracking errors", "user_id", userID, "errors", len(res.Errors))
		}
	})
}

func (s *Sweeper) forEach(ctx context.Context, userIDs []string, fn func(ctx context.Context, userID string)) {
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, id := range userIDs {
		sem <- struct{}{}
		wg.Add(1)
		s.inFlight.Add(1)
		go func(userID string) {
			defer func() {
				s.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			fn(ctx, userID)
		}(id)
	}
	wg.Wait()
}

func (s *Sweeper) fail(op string, err error, args ...any) {
	s.totalErrors.Add(1)
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
	slog.Error(op, append(args, "error", err.Error())...)
}
