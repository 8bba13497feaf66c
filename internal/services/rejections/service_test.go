package rejections

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Ozonelabrada/resqhub-sub003/internal/domain/enums"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	redisrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/redis"
	"github.com/Ozonelabrada/resqhub-sub003/internal/services/notify"
)

func TestRecordAppendsEntry(t *testing.T) {
	svc, store, _ := newTestService(t, Config{})

	err := svc.Record(context.Background(), "m-1", 42, "wrong_item", "it was a different bag")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.entries))
	}
	got := store.entries[0]
	if got.MatchID != "m-1" || got.UserID != 42 || got.Reason != "wrong_item" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be stamped")
	}
}

func TestRecordRejectsUnknownReason(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	if err := svc.Record(context.Background(), "m-1", 42, "rage_quit", ""); err != ErrValidation {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRecordDefaultsEmptyReasonToOther(t *testing.T) {
	svc, store, _ := newTestService(t, Config{})

	if err := svc.Record(context.Background(), "m-1", 42, "", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if store.entries[0].Reason != string(enums.RejectionReasonOther) {
		t.Fatalf("unexpected reason: %q", store.entries[0].Reason)
	}
}

func TestThresholdFlagsUserExactlyOnce(t *testing.T) {
	svc, _, flags := newTestService(t, Config{Threshold: 3})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.Record(ctx, "m-1", 42, "no_show", ""); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if flags.count(42) != 0 {
		t.Fatalf("flag fired below threshold")
	}

	// Third rejection crosses the threshold.
	if err := svc.Record(ctx, "m-2", 42, "no_show", ""); err != nil {
		t.Fatalf("third record: %v", err)
	}
	if flags.count(42) != 1 {
		t.Fatalf("expected one flag, got %d", flags.count(42))
	}

	// Further rejections stay above the threshold but never re-flag.
	for i := 0; i < 3; i++ {
		if err := svc.Record(ctx, "m-3", 42, "no_show", ""); err != nil {
			t.Fatalf("extra record %d: %v", i, err)
		}
	}
	if flags.count(42) != 1 {
		t.Fatalf("expected flagging to stay idempotent, got %d", flags.count(42))
	}
}

func TestThresholdNotifiesOnFirstFlagOnly(t *testing.T) {
	svc, _, _ := newTestService(t, Config{Threshold: 3})
	sink := &captureNotifier{}
	svc.AttachNotifier(sink)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := svc.Record(ctx, "m-1", 42, "not_my_item", ""); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	if len(sink.flagged) != 1 {
		t.Fatalf("expected one flag notification, got %d", len(sink.flagged))
	}
	if sink.flagged[0].UserID != 42 || sink.flagged[0].Reason != string(enums.FlagReasonRepeatedRejections) {
		t.Fatalf("unexpected flag event: %+v", sink.flagged[0])
	}
}

func TestThresholdCountsOnlyInsideWindow(t *testing.T) {
	svc, store, flags := newTestService(t, Config{Threshold: 3, Window: 24 * time.Hour})
	ctx := context.Background()

	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	// Two stale rejections well outside the window.
	store.entries = append(store.entries,
		pgrepo.RejectionWriteRecord{MatchID: "old-1", UserID: 42, Reason: "no_show", CreatedAt: base.Add(-48 * time.Hour)},
		pgrepo.RejectionWriteRecord{MatchID: "old-2", UserID: 42, Reason: "no_show", CreatedAt: base.Add(-49 * time.Hour)},
	)

	if err := svc.Record(ctx, "m-1", 42, "no_show", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if flags.count(42) != 0 {
		t.Fatalf("stale entries must not count toward the threshold")
	}
}

func TestStatsForUser(t *testing.T) {
	svc, _, _ := newTestService(t, Config{Threshold: 3})
	ctx := context.Background()

	for _, reason := range []string{"no_show", "wrong_item", "no_show"} {
		if err := svc.Record(ctx, "m-1", 42, reason, ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	stats, err := svc.StatsForUser(ctx, 42)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.WindowCount != 3 {
		t.Fatalf("unexpected window count: %d", stats.WindowCount)
	}
	if !stats.Flagged {
		t.Fatalf("expected user to be flagged after crossing the threshold")
	}
	if len(stats.RecentReasons) != 3 {
		t.Fatalf("unexpected recent reasons: %v", stats.RecentReasons)
	}
}

func TestFlagUserManualIsIdempotent(t *testing.T) {
	svc, _, flags := newTestService(t, Config{})
	ctx := context.Background()

	inserted, err := svc.FlagUser(ctx, 7, enums.FlagReasonManualReview)
	if err != nil {
		t.Fatalf("flag user: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first manual flag to insert")
	}

	again, err := svc.FlagUser(ctx, 7, enums.FlagReasonManualReview)
	if err != nil {
		t.Fatalf("repeat flag: %v", err)
	}
	if again {
		t.Fatalf("expected repeat manual flag to be a no-op")
	}
	if flags.count(7) != 1 {
		t.Fatalf("expected one flag row, got %d", flags.count(7))
	}
}

func TestFlagUserRejectsUnknownUser(t *testing.T) {
	svc, _, flags := newTestService(t, Config{})
	svc.users = knownUsers{7: true}
	ctx := context.Background()

	if _, err := svc.FlagUser(ctx, 999, enums.FlagReasonManualReview); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if flags.count(999) != 0 {
		t.Fatalf("flag must not be written for unknown user")
	}

	if _, err := svc.FlagUser(ctx, 7, enums.FlagReasonManualReview); err != nil {
		t.Fatalf("flag known user: %v", err)
	}
}

func TestAnalyticsReport(t *testing.T) {
	svc, _, _ := newTestService(t, Config{Threshold: 2})
	ctx := context.Background()

	for _, rec := range []struct {
		user   int64
		reason string
	}{
		{42, "no_show"},
		{42, "no_show"},
		{7, "wrong_item"},
	} {
		if err := svc.Record(ctx, "m-1", rec.user, rec.reason, ""); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	report, err := svc.AnalyticsReport(ctx, pgrepo.RejectionFilters{})
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if len(report.Rows) != 2 {
		t.Fatalf("unexpected rows: %+v", report.Rows)
	}
	if report.FlaggedUsers != 1 {
		t.Fatalf("expected one flagged user, got %d", report.FlaggedUsers)
	}
}

func newTestService(t *testing.T, cfg Config) (*Service, *fakeRejectionStore, *fakeFlagStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &fakeRejectionStore{}
	flags := newFakeFlagStore()
	svc := NewService(Dependencies{
		Rejections: store,
		Flags:      flags,
		Marker:     redisrepo.NewFlagMarkerRepo(client),
	}, cfg)

	return svc, store, flags
}

type fakeRejectionStore struct {
	mu      sync.Mutex
	entries []pgrepo.RejectionWriteRecord
}

func (f *fakeRejectionStore) Append(_ context.Context, rec pgrepo.RejectionWriteRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, rec)
	return nil
}

func (f *fakeRejectionStore) CountForUserSince(_ context.Context, userID int64, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, rec := range f.entries {
		if rec.UserID == userID && !rec.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeRejectionStore) RecentReasonsForUser(_ context.Context, userID int64, since time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reasons := make([]string, 0, limit)
	for i := len(f.entries) - 1; i >= 0 && len(reasons) < limit; i-- {
		rec := f.entries[i]
		if rec.UserID == userID && !rec.CreatedAt.Before(since) {
			reasons = append(reasons, rec.Reason)
		}
	}
	return reasons, nil
}

func (f *fakeRejectionStore) Aggregate(_ context.Context, filters pgrepo.RejectionFilters) ([]pgrepo.RejectionAggregateRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int64{}
	for _, rec := range f.entries {
		if filters.Reason != "" && rec.Reason != filters.Reason {
			continue
		}
		counts[rec.Reason]++
	}
	rows := make([]pgrepo.RejectionAggregateRow, 0, len(counts))
	for reason, count := range counts {
		rows = append(rows, pgrepo.RejectionAggregateRow{Reason: reason, Count: count})
	}
	return rows, nil
}

type fakeFlagStore struct {
	mu   sync.Mutex
	rows map[int64]map[string]time.Time
}

func newFakeFlagStore() *fakeFlagStore {
	return &fakeFlagStore{rows: make(map[int64]map[string]time.Time)}
}

func (f *fakeFlagStore) Insert(_ context.Context, userID int64, reason string, flaggedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[userID] == nil {
		f.rows[userID] = make(map[string]time.Time)
	}
	if _, exists := f.rows[userID][reason]; exists {
		return false, nil
	}
	f.rows[userID][reason] = flaggedAt
	return true, nil
}

func (f *fakeFlagStore) ListForUser(_ context.Context, userID int64) ([]pgrepo.UserFlagRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]pgrepo.UserFlagRecord, 0)
	for reason, at := range f.rows[userID] {
		items = append(items, pgrepo.UserFlagRecord{UserID: userID, Reason: reason, FlaggedAt: at})
	}
	return items, nil
}

func (f *fakeFlagStore) CountFlaggedSince(_ context.Context, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, reasons := range f.rows {
		for _, at := range reasons {
			if !at.Before(since) {
				count++
				break
			}
		}
	}
	return count, nil
}

func (f *fakeFlagStore) count(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[userID])
}

type knownUsers map[int64]bool

func (k knownUsers) Exists(_ context.Context, id int64) (bool, error) {
	return k[id], nil
}

type captureNotifier struct {
	mu      sync.Mutex
	flagged []notify.FlagEvent
}

func (c *captureNotifier) MatchResolved(context.Context, notify.MatchEvent) error  { return nil }
func (c *captureNotifier) MatchExpired(context.Context, notify.MatchEvent) error   { return nil }
func (c *captureNotifier) MatchDismissed(context.Context, notify.MatchEvent) error { return nil }

func (c *captureNotifier) UserFlagged(_ context.Context, event notify.FlagEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flagged = append(c.flagged, event)
	return nil
}
