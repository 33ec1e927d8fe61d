package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type sweepStoreStub struct {
	counts []int64
	calls  int
	err    error
}

func (s *sweepStoreStub) ArchiveDelivered(ctx context.Context, archivedAt time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	count := int64(0)
	if s.calls < len(s.counts) {
		count = s.counts[s.calls]
	}
	s.calls++
	return count, nil
}

func TestSweepServiceRun(t *testing.T) {
	store := &sweepStoreStub{counts: []int64{17, 0}}
	fixed := time.Date(2026, 2, 15, 21, 59, 0, 0, time.UTC)
	metrics := NewMetricsService()
	svc := NewSweepService(store, nil, SweepConfig{}).
		WithClock(func() time.Time { return fixed }).
		WithMetrics(metrics)

	archived, executedAt, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(17), archived)
	require.Equal(t, fixed, executedAt)

	// A second sweep right after finds nothing left to archive.
	archived, _, err = svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), archived)
	require.Equal(t, 2, store.calls)

	// Both sweeps count, only the first moved parcels.
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.archiveSweeps))
	require.Equal(t, 17.0, testutil.ToFloat64(metrics.archivedTotal))
}

func TestSweepServiceRunPropagatesFailure(t *testing.T) {
	store := &sweepStoreStub{err: errors.New("connection reset")}
	svc := NewSweepService(store, nil, SweepConfig{})

	_, _, err := svc.Run(context.Background())
	require.Error(t, err)
}

func TestSweepServiceNextRun(t *testing.T) {
	svc := NewSweepService(&sweepStoreStub{}, nil, SweepConfig{
		Weekday: time.Sunday,
		Hour:    23,
		Minute:  59,
	})

	// Thursday noon runs on the upcoming Sunday.
	thursday := time.Date(2026, 2, 12, 12, 0, 0, 0, time.UTC)
	next := svc.nextRun(thursday)
	require.Equal(t, time.Date(2026, 2, 15, 23, 59, 0, 0, time.UTC), next)

	// Sunday just before the deadline still runs the same evening.
	sundayEarly := time.Date(2026, 2, 15, 23, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 2, 15, 23, 59, 0, 0, time.UTC), svc.nextRun(sundayEarly))

	// Sunday at the deadline rolls over to the following week.
	sundayLate := time.Date(2026, 2, 15, 23, 59, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 2, 22, 23, 59, 0, 0, time.UTC), svc.nextRun(sundayLate))
}
