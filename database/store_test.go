package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeowSalty/transtat/database/types"
	"github.com/MeowSalty/transtat/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := Connect(Options{
		Type: TypeSQLite,
		Path: filepath.Join(t.TempDir(), "transtat.db"),
	}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func float(v float64) *float64 { return &v }

func event(model string, ts time.Time, latency float64) *types.TranslationEvent {
	return &types.TranslationEvent{
		Timestamp:    ts.Truncate(types.TimestampPrecision),
		ModelName:    model,
		SourceLang:   "en",
		TargetLang:   "fr",
		InputLength:  10,
		OutputLength: 12,
		LatencyMs:    latency,
	}
}

func mustInsert(t *testing.T, s *Store, e *types.TranslationEvent) uint64 {
	t.Helper()
	id, err := s.Insert(context.Background(), e)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var last uint64
	for i := 0; i < 5; i++ {
		id := mustInsert(t, s, event("m", base.Add(-time.Duration(i)*time.Hour), 1))
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}

	maxID, err := s.MaxID(context.Background())
	if err != nil {
		t.Fatalf("max id: %v", err)
	}
	if maxID != last {
		t.Fatalf("expected max id %d, got %d", last, maxID)
	}
}

func TestInsertDefaultsTimestamp(t *testing.T) {
	s := newTestStore(t)
	before := time.Now().UTC().Add(-time.Second)

	e := event("m", time.Time{}, 1)
	mustInsert(t, s, e)

	if e.Timestamp.Before(before) || e.Timestamp.Location() != time.UTC {
		t.Fatalf("unexpected default timestamp %v", e.Timestamp)
	}
}

func TestInsertRejectsInvalidEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := event("m", time.Now(), 1)
	bad.InputLength = -1
	if _, err := s.Insert(ctx, bad); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	withID := event("m", time.Now(), 1)
	withID.ID = 42
	if _, err := s.Insert(ctx, withID); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error for caller-supplied id, got %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no rows after rejected inserts, got %d", n)
	}
}

func TestListByModelKeyset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var want []uint64
	for i := 0; i < 5; i++ {
		want = append(want, mustInsert(t, s, event("a", base.Add(time.Duration(5-i)*time.Minute), 1)))
		mustInsert(t, s, event("b", base, 1))
	}

	var got []uint64
	scan := ModelScan{ModelName: "a", Limit: 2}
	for {
		batch, err := s.ListByModel(ctx, scan)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, e := range batch {
			if e.ModelName != "a" {
				t.Fatalf("unexpected model %q", e.ModelName)
			}
			got = append(got, e.ID)
		}
		scan.AfterID = batch[len(batch)-1].ID
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected id %d, got %d", i, want[i], got[i])
		}
	}
}

func TestListByModelTimeWindow(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mustInsert(t, s, event("a", base, 1))
	inside := mustInsert(t, s, event("a", base.Add(time.Hour), 1))
	mustInsert(t, s, event("a", base.Add(2*time.Hour), 1))

	start, end := base.Add(time.Hour), base.Add(2*time.Hour)
	got, err := s.ListByModel(context.Background(), ModelScan{ModelName: "a", Start: &start, End: &end, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != inside {
		t.Fatalf("expected only event %d, got %+v", inside, got)
	}
}

func TestListByTimeRangeHalfOpen(t *testing.T) {
	s := newTestStore(t)
	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	before := mustInsert(t, s, event("m", t1.Add(-time.Microsecond), 1))
	atStart := mustInsert(t, s, event("m", t1, 1))
	middle := mustInsert(t, s, event("m", t1.Add(30*time.Second+500*time.Millisecond), 1))
	atEnd := mustInsert(t, s, event("m", t2, 1))

	got, err := s.ListByTimeRange(context.Background(), RangeScan{Start: t1, End: t2, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := make(map[uint64]bool)
	for _, e := range got {
		ids[e.ID] = true
	}
	if !ids[atStart] || !ids[middle] {
		t.Fatalf("expected start and middle events, got %+v", got)
	}
	if ids[before] || ids[atEnd] {
		t.Fatalf("events outside [t1, t2) returned: %+v", got)
	}
}

func TestListByTimeRangeOrdersByTimestampThenID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	late := mustInsert(t, s, event("m", base.Add(2*time.Second), 1))
	tieA := mustInsert(t, s, event("m", base.Add(time.Second), 1))
	tieB := mustInsert(t, s, event("m", base.Add(time.Second), 1))
	early := mustInsert(t, s, event("m", base, 1))

	want := []uint64{early, tieA, tieB, late}
	var got []uint64
	scan := RangeScan{Start: base, End: base.Add(time.Minute), Limit: 1}
	for {
		batch, err := s.ListByTimeRange(ctx, scan)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(batch) == 0 {
			break
		}
		last := batch[len(batch)-1]
		got = append(got, last.ID)
		scan.After = &Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}

	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestPurgeBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		mustInsert(t, s, event("m", base.Add(time.Duration(i)*time.Hour), 1))
	}

	deleted, err := s.PurgeBefore(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("expected 2 remaining, got %d", n)
	}
}

func TestPurgeKeepLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, mustInsert(t, s, event("m", time.Now(), 1)))
	}

	deleted, err := s.PurgeKeepLatest(ctx, 2)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}

	rest, err := s.ListByModel(ctx, ModelScan{ModelName: "m", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rest) != 2 || rest[0].ID != ids[3] || rest[1].ID != ids[4] {
		t.Fatalf("expected newest two events to survive, got %+v", rest)
	}

	if deleted, err := s.PurgeKeepLatest(ctx, 10); err != nil || deleted != 0 {
		t.Fatalf("expected no-op purge, got %d, %v", deleted, err)
	}
}

func TestPurgeKeepLatestRejectsNegative(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		mustInsert(t, s, event("m", time.Now(), 1))
	}

	deleted, err := s.PurgeKeepLatest(ctx, -1)
	if !errors.Is(err, errs.ErrRequest) || deleted != 0 {
		t.Fatalf("expected RequestError for negative keep, got %d, %v", deleted, err)
	}
	if n, _ := s.Count(ctx); n != 3 {
		t.Fatalf("expected no rows deleted, %d remain", n)
	}
}

func TestInsertRejectsSubMicrosecondTimestamp(t *testing.T) {
	s := newTestStore(t)
	e := event("m", time.Time{}, 1)
	e.Timestamp = time.Date(2024, 5, 1, 12, 0, 0, 1500, time.UTC)
	if _, err := s.Insert(context.Background(), e); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if n, _ := s.Count(context.Background()); n != 0 {
		t.Fatalf("expected nothing persisted, got %d rows", n)
	}
}

func TestGroupStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	a := event("a", now, 100)
	a.Similarity = float(0.9)
	mustInsert(t, s, a)
	mustInsert(t, s, event("a", now, 200))
	mustInsert(t, s, event("b", now, 50))

	stats, err := s.GroupStats(ctx, FuncAvg, AggregateQuery{Metric: ColumnLatencyMs, GroupBy: []string{ColumnModelName}})
	if err != nil {
		t.Fatalf("group stats: %v", err)
	}
	got := map[string]GroupStat{}
	for _, st := range stats {
		got[st.Keys[0]] = st
	}
	if got["a"].Value != 150 || got["a"].Count != 2 {
		t.Fatalf("unexpected stats for a: %+v", got["a"])
	}
	if got["b"].Value != 50 {
		t.Fatalf("unexpected stats for b: %+v", got["b"])
	}

	// b has no similarity score, so it must not appear
	stats, err = s.GroupStats(ctx, FuncAvg, AggregateQuery{Metric: ColumnSimilarity, GroupBy: []string{ColumnModelName}})
	if err != nil {
		t.Fatalf("group stats: %v", err)
	}
	if len(stats) != 1 || stats[0].Keys[0] != "a" {
		t.Fatalf("expected only group a, got %+v", stats)
	}
}

func TestGroupStatsRejectsUnknownColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GroupStats(ctx, FuncAvg, AggregateQuery{Metric: "input_text", GroupBy: []string{ColumnModelName}}); err == nil {
		t.Fatal("expected error for unknown metric")
	}
	if _, err := s.GroupStats(ctx, FuncAvg, AggregateQuery{Metric: ColumnLatencyMs, GroupBy: []string{"id; DROP TABLE x"}}); err == nil {
		t.Fatal("expected error for unknown group column")
	}
	if _, err := s.GroupStats(ctx, "SUM", AggregateQuery{Metric: ColumnLatencyMs, GroupBy: []string{ColumnModelName}}); err == nil {
		t.Fatal("expected error for unknown function")
	}
}

func TestStreamMetricOrdersWithinGroup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, v := range []float64{30, 10, 20} {
		mustInsert(t, s, event("a", time.Now(), v))
	}
	mustInsert(t, s, event("b", time.Now(), 5))

	var got []string
	var values []float64
	err := s.StreamMetric(ctx, AggregateQuery{Metric: ColumnLatencyMs, GroupBy: []string{ColumnModelName}}, func(keys []string, v float64) error {
		got = append(got, keys[0])
		values = append(values, v)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	wantKeys := []string{"a", "a", "a", "b"}
	wantValues := []float64{10, 20, 30, 5}
	for i := range wantKeys {
		if got[i] != wantKeys[i] || values[i] != wantValues[i] {
			t.Fatalf("expected %v %v, got %v %v", wantKeys, wantValues, got, values)
		}
	}
}

func TestStreamMetricStopsOnCallbackError(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		mustInsert(t, s, event("a", time.Now(), float64(i)))
	}

	stop := errors.New("stop")
	calls := 0
	err := s.StreamMetric(context.Background(), AggregateQuery{Metric: ColumnLatencyMs, GroupBy: []string{ColumnModelName}}, func([]string, float64) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("expected stop after first row, got calls=%d err=%v", calls, err)
	}
}

func TestMeanAndCountMatching(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustInsert(t, s, event("a", time.Now(), 10))
	mustInsert(t, s, event("a", time.Now(), 20))

	mean, n, err := s.Mean(ctx, ColumnLatencyMs, AggregateFilter{ModelName: "a"})
	if err != nil || mean != 15 || n != 2 {
		t.Fatalf("unexpected mean %v n %d err %v", mean, n, err)
	}

	_, n, err = s.Mean(ctx, ColumnTokensPerSec, AggregateFilter{})
	if err != nil || n != 0 {
		t.Fatalf("expected no tokens_per_sec values, got n=%d err=%v", n, err)
	}

	count, err := s.CountMatching(ctx, AggregateFilter{ModelName: "missing"})
	if err != nil || count != 0 {
		t.Fatalf("expected zero count, got %d %v", count, err)
	}
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	s := newTestStore(t)
	s.Close()

	_, err := s.Insert(context.Background(), event("m", time.Now(), 1))
	if !errors.Is(err, errs.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}
