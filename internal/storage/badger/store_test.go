package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/models"
)

// --- Test helpers ---

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	logger := testLogger()
	store, err := NewStore(logger, filepath.Join(dir, "badger"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}

// --- Store tests ---

func TestStore_OpenClose(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(testLogger(), filepath.Join(dir, "badger"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store.DB() == nil {
		t.Fatal("expected non-nil DB")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

// --- Company storage tests ---

func TestCompanyStorage_UpsertPreservesNonEmptyFields(t *testing.T) {
	store := newTestStore(t)
	companies := NewCompanyStorage(store, testLogger())
	ctx := context.Background()

	first := &models.Company{CIK: "0000320193", Symbol: "AAPL", Name: "Apple Inc.", IsActive: true}
	if err := companies.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated company id")
	}

	// Upsert with empty symbol/name must not clobber.
	second := &models.Company{CIK: "0000320193", IsActive: true}
	if err := companies.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := companies.GetByCIK(ctx, "0000320193")
	if err != nil {
		t.Fatalf("GetByCIK failed: %v", err)
	}
	if got.Symbol != "AAPL" || got.Name != "Apple Inc." {
		t.Errorf("fields clobbered: %+v", got)
	}
	if got.ID != first.ID {
		t.Errorf("id changed across upserts: %s vs %s", got.ID, first.ID)
	}
}

func TestCompanyStorage_ListActiveOnly(t *testing.T) {
	store := newTestStore(t)
	companies := NewCompanyStorage(store, testLogger())
	ctx := context.Background()

	companies.Upsert(ctx, &models.Company{CIK: "0000000001", Name: "Active Co", IsActive: true})
	companies.Upsert(ctx, &models.Company{CIK: "0000000002", Name: "Inactive Co", IsActive: false})

	active, err := companies.List(ctx, true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(active) != 1 || active[0].CIK != "0000000001" {
		t.Errorf("active list = %+v", active)
	}

	all, err := companies.List(ctx, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all list has %d entries, want 2", len(all))
	}
}

func TestCompanyStorage_SetActiveAndLastPolled(t *testing.T) {
	store := newTestStore(t)
	companies := NewCompanyStorage(store, testLogger())
	ctx := context.Background()

	companies.Upsert(ctx, &models.Company{CIK: "0000000003", Name: "Co", IsActive: true})
	if err := companies.SetActive(ctx, "0000000003", false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	ts := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := companies.SetLastPolledAt(ctx, "0000000003", ts); err != nil {
		t.Fatalf("SetLastPolledAt failed: %v", err)
	}

	got, _ := companies.GetByCIK(ctx, "0000000003")
	if got.IsActive {
		t.Error("expected company to be deactivated")
	}
	if !got.LastPolledAt.Equal(ts) {
		t.Errorf("last polled at = %v, want %v", got.LastPolledAt, ts)
	}
}

// --- Filing storage tests ---

// One row per (cik, accessionNo), regardless of how many saves happen.
func TestFilingStorage_AccessionUniqueness(t *testing.T) {
	store := newTestStore(t)
	filings := NewFilingStorage(store, testLogger())
	ctx := context.Background()

	f1 := &models.Filing{CIK: "0000320193", AccessionNo: "0000320193-23-000064", FormType: "10-K", CompanyID: "c1", RawContent: "v1"}
	if err := filings.SaveFiling(ctx, f1); err != nil {
		t.Fatalf("SaveFiling failed: %v", err)
	}
	f2 := &models.Filing{CIK: "0000320193", AccessionNo: "0000320193-23-000064", FormType: "10-K", CompanyID: "c1", RawContent: "v2"}
	if err := filings.SaveFiling(ctx, f2); err != nil {
		t.Fatalf("SaveFiling failed: %v", err)
	}

	if f2.ID != f1.ID {
		t.Errorf("second save created a new identity: %s vs %s", f2.ID, f1.ID)
	}

	rows, err := filings.Query(ctx, models.FilingQueryOptions{CIK: "0000320193"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 filing row, got %d", len(rows))
	}
	if rows[0].RawContent != "v2" {
		t.Errorf("content = %q, want v2", rows[0].RawContent)
	}
}

func TestFilingStorage_LatestBefore(t *testing.T) {
	store := newTestStore(t)
	filings := NewFilingStorage(store, testLogger())
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC) }

	for i, form := range []string{"10-K", "10-Q", "8-K"} {
		f := &models.Filing{
			CIK:         "0000320193",
			AccessionNo: fmt.Sprintf("0000320193-23-00000%d", i),
			FormType:    form,
			CompanyID:   "c1",
			FiledDate:   day(i + 1),
		}
		if err := filings.SaveFiling(ctx, f); err != nil {
			t.Fatalf("SaveFiling failed: %v", err)
		}
	}

	// 10-Q comparable set includes the 10-K fallback.
	got, err := filings.LatestBefore(ctx, "c1", []string{"10-Q", "10-K"}, day(10))
	if err != nil {
		t.Fatalf("LatestBefore failed: %v", err)
	}
	if got == nil || got.FormType != "10-Q" {
		t.Fatalf("latest = %+v, want the 10-Q", got)
	}

	// Nothing filed before day 1.
	got, err = filings.LatestBefore(ctx, "c1", []string{"10-K"}, day(1))
	if err != nil {
		t.Fatalf("LatestBefore failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestFilingStorage_SaveProcessedTransactional(t *testing.T) {
	store := newTestStore(t)
	filings := NewFilingStorage(store, testLogger())
	ctx := context.Background()

	filing := &models.Filing{CIK: "0000320193", AccessionNo: "0000320193-23-000064", FormType: "10-K", CompanyID: "c1", RawContent: "x"}
	if err := filings.SaveFiling(ctx, filing); err != nil {
		t.Fatalf("SaveFiling failed: %v", err)
	}

	secs := []models.Section{
		{Type: models.SectionBusiness, Name: "ITEM 1. BUSINESS", Order: 0, Content: "We sell phones."},
	}
	diffs := []models.Diff{
		{Section: models.SectionBusiness, ChangeType: models.ChangeModification, MaterialityScore: 0.95},
		{Section: models.SectionRiskFactors, ChangeType: models.ChangeAddition, MaterialityScore: 0.6},
	}
	filing.MaterialChanges = 1

	if err := filings.SaveProcessed(ctx, filing, secs, diffs); err != nil {
		t.Fatalf("SaveProcessed failed: %v", err)
	}

	got, _ := filings.GetByAccession(ctx, "0000320193", "0000320193-23-000064")
	if !got.IsProcessed {
		t.Error("filing not marked processed")
	}

	gotSecs, _ := filings.GetSections(ctx, filing.ID)
	if len(gotSecs) != 1 || gotSecs[0].FilingID != filing.ID {
		t.Errorf("sections = %+v", gotSecs)
	}

	gotDiffs, _ := filings.GetDiffs(ctx, filing.ID)
	if len(gotDiffs) != 2 {
		t.Fatalf("diffs = %d, want 2", len(gotDiffs))
	}

	// Reprocess replaces, never accumulates.
	if err := filings.SaveProcessed(ctx, filing, secs, diffs[:1]); err != nil {
		t.Fatalf("SaveProcessed failed: %v", err)
	}
	gotDiffs, _ = filings.GetDiffs(ctx, filing.ID)
	if len(gotDiffs) != 1 {
		t.Fatalf("diffs after reprocess = %d, want 1", len(gotDiffs))
	}
}

func TestFilingStorage_QueryDiffsFilters(t *testing.T) {
	store := newTestStore(t)
	filings := NewFilingStorage(store, testLogger())
	ctx := context.Background()

	filing := &models.Filing{CIK: "0000000009", AccessionNo: "0000000009-23-000001", FormType: "10-K", CompanyID: "c9"}
	filings.SaveFiling(ctx, filing)
	filings.SaveProcessed(ctx, filing, nil, []models.Diff{
		{Section: models.SectionBusiness, ChangeType: models.ChangeModification, MaterialityScore: 0.9},
		{Section: models.SectionRiskFactors, ChangeType: models.ChangeAddition, MaterialityScore: 0.5},
	})

	material, err := filings.QueryDiffs(ctx, filing.ID, models.DiffQueryOptions{MaterialityThreshold: 0.7})
	if err != nil {
		t.Fatalf("QueryDiffs failed: %v", err)
	}
	if len(material) != 1 || material[0].Section != models.SectionBusiness {
		t.Errorf("material diffs = %+v", material)
	}

	byType, _ := filings.QueryDiffs(ctx, filing.ID, models.DiffQueryOptions{ChangeType: models.ChangeAddition})
	if len(byType) != 1 || byType[0].Section != models.SectionRiskFactors {
		t.Errorf("by-type diffs = %+v", byType)
	}
}

// --- Job queue tests ---

func TestJobQueue_DedupKeySingleNonTerminal(t *testing.T) {
	store := newTestStore(t)
	jobs := NewJobQueueStorage(store, testLogger())
	ctx := context.Background()

	first := &models.Job{Type: models.JobTypeIngest, DedupKey: "ingest:1:2"}
	id1, err := jobs.Enqueue(ctx, first)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	second := &models.Job{Type: models.JobTypeIngest, DedupKey: "ingest:1:2"}
	id2, err := jobs.Enqueue(ctx, second)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("dedup failed: %s vs %s", id1, id2)
	}

	stats, _ := jobs.Stats(ctx)
	if stats.Pending != 1 {
		t.Errorf("pending = %d, want 1", stats.Pending)
	}

	// Once terminal, the key may be reused.
	if err := jobs.MarkCompleted(ctx, id1, nil); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	id3, err := jobs.Enqueue(ctx, &models.Job{Type: models.JobTypeIngest, DedupKey: "ingest:1:2"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id3 == id1 {
		t.Error("terminal job must not absorb a new enqueue")
	}
}

// Concurrent dedup enqueues collapse to one job.
func TestJobQueue_ConcurrentDedup(t *testing.T) {
	store := newTestStore(t)
	jobs := NewJobQueueStorage(store, testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := jobs.Enqueue(ctx, &models.Job{Type: models.JobTypeIngest, DedupKey: "race"})
			if err != nil {
				t.Errorf("Enqueue failed: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected all enqueues to resolve to 1 job, got %d", len(seen))
	}
}

func TestJobQueue_ClaimOrderingAndSchedule(t *testing.T) {
	store := newTestStore(t)
	jobs := NewJobQueueStorage(store, testLogger())
	ctx := context.Background()
	now := time.Now()

	lowOld := &models.Job{Type: models.JobTypeCleanup, Priority: models.PriorityLow, CreatedAt: now.Add(-time.Hour)}
	highNew := &models.Job{Type: models.JobTypeDeliver, Priority: models.PriorityHigh, CreatedAt: now}
	future := &models.Job{Type: models.JobTypeIngest, Priority: models.PriorityHigh, ScheduledFor: now.Add(time.Hour)}

	for _, j := range []*models.Job{lowOld, highNew, future} {
		if _, err := jobs.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	// Highest priority due job first.
	got, err := jobs.Claim(ctx, now)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if got == nil || got.ID != highNew.ID {
		t.Fatalf("claimed %+v, want the high-priority job", got)
	}
	if got.Status != models.JobStatusRunning || got.StartedAt.IsZero() {
		t.Errorf("claimed job not marked running: %+v", got)
	}

	// Then the older low-priority one; the future job stays invisible.
	got, _ = jobs.Claim(ctx, now)
	if got == nil || got.ID != lowOld.ID {
		t.Fatalf("claimed %+v, want the low-priority job", got)
	}
	got, _ = jobs.Claim(ctx, now)
	if got != nil {
		t.Fatalf("claimed future job early: %+v", got)
	}
}

// Exactly one claimant wins each job.
func TestJobQueue_ClaimAtomicity(t *testing.T) {
	store := newTestStore(t)
	jobs := NewJobQueueStorage(store, testLogger())
	ctx := context.Background()

	const jobCount = 10
	for i := 0; i < jobCount; i++ {
		if _, err := jobs.Enqueue(ctx, &models.Job{Type: models.JobTypeIngest}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	claimed := make(chan string, jobCount*3)
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := jobs.Claim(ctx, time.Now())
				if err != nil {
					t.Errorf("Claim failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				claimed <- job.ID
			}
		}()
	}
	wg.Wait()
	close(claimed)

	seen := map[string]int{}
	total := 0
	for id := range claimed {
		seen[id]++
		total++
	}
	if total != jobCount {
		t.Errorf("claimed %d jobs, want %d", total, jobCount)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}

func TestJobQueue_ReleaseAndReap(t *testing.T) {
	store := newTestStore(t)
	jobs := NewJobQueueStorage(store, testLogger())
	ctx := context.Background()

	id, _ := jobs.Enqueue(ctx, &models.Job{Type: models.JobTypeIngest})
	now := time.Now()
	job, _ := jobs.Claim(ctx, now)
	if job == nil || job.ID != id {
		t.Fatalf("claim failed: %+v", job)
	}

	// Release pushes the job back with a retry count and future schedule.
	retryAt := now.Add(4 * time.Second)
	if err := jobs.Release(ctx, id, "boom", retryAt); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	got, _ := jobs.GetByID(ctx, id)
	if got.Status != models.JobStatusPending || got.RetryCount != 1 || got.ErrorMessage != "boom" {
		t.Errorf("released job = %+v", got)
	}
	if claimedNow, _ := jobs.Claim(ctx, now); claimedNow != nil {
		t.Error("released job claimable before its schedule")
	}

	// Reap returns stuck RUNNING jobs to PENDING.
	if _, err := jobs.Claim(ctx, retryAt.Add(time.Second)); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	count, err := jobs.ReapStale(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReapStale failed: %v", err)
	}
	if count != 1 {
		t.Errorf("reaped %d, want 1", count)
	}
	got, _ = jobs.GetByID(ctx, id)
	if got.Status != models.JobStatusPending {
		t.Errorf("reaped job status = %s", got.Status)
	}
}

func TestJobQueue_PurgeTerminal(t *testing.T) {
	store := newTestStore(t)
	jobs := NewJobQueueStorage(store, testLogger())
	ctx := context.Background()

	id1, _ := jobs.Enqueue(ctx, &models.Job{Type: models.JobTypeIngest})
	id2, _ := jobs.Enqueue(ctx, &models.Job{Type: models.JobTypeIngest})
	jobs.MarkCompleted(ctx, id1, nil)
	jobs.MarkFailed(ctx, id2, "dead")

	count, err := jobs.PurgeTerminal(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PurgeTerminal failed: %v", err)
	}
	if count != 2 {
		t.Errorf("purged %d, want 2", count)
	}
}

// --- Watchlist / alert rule / outbox tests ---

func TestWatchlistStorage_UniquePerUserCompany(t *testing.T) {
	store := newTestStore(t)
	watchlists := NewWatchlistStorage(store, testLogger())
	ctx := context.Background()

	w1 := &models.Watchlist{UserID: "u1", CompanyID: "c1", AlertTypes: []string{models.AlertTypeMaterialChange}, IsActive: true}
	watchlists.Upsert(ctx, w1)
	w2 := &models.Watchlist{UserID: "u1", CompanyID: "c1", AlertTypes: []string{models.AlertTypePriceChange}, IsActive: true}
	watchlists.Upsert(ctx, w2)

	byCompany, err := watchlists.ListByCompany(ctx, "c1", true)
	if err != nil {
		t.Fatalf("ListByCompany failed: %v", err)
	}
	if len(byCompany) != 1 {
		t.Fatalf("expected 1 watchlist, got %d", len(byCompany))
	}
	if byCompany[0].AlertTypes[0] != models.AlertTypePriceChange {
		t.Errorf("upsert did not replace alert types: %+v", byCompany[0])
	}
	if byCompany[0].ID != w1.ID {
		t.Errorf("identity changed across upserts")
	}
}

func TestAlertRuleStorage_ThresholdValidation(t *testing.T) {
	store := newTestStore(t)
	rules := NewAlertRuleStorage(store, testLogger())
	ctx := context.Background()

	bad := &models.AlertRule{UserID: "u1", AlertType: models.AlertTypeMaterialChange, Method: models.MethodEmail, Threshold: 1.5}
	if err := rules.Upsert(ctx, bad); err == nil {
		t.Fatal("expected threshold validation error")
	}

	good := &models.AlertRule{
		UserID:    "u1",
		AlertType: models.AlertTypeMaterialChange,
		Method:    models.MethodEmail,
		IsEnabled: true,
		Threshold: 0.7,
		Frequency: models.FrequencyImmediate,
	}
	if err := rules.Upsert(ctx, good); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	enabled, err := rules.ListEnabled(ctx, "u1", models.AlertTypeMaterialChange)
	if err != nil {
		t.Fatalf("ListEnabled failed: %v", err)
	}
	if len(enabled) != 1 {
		t.Errorf("enabled rules = %d, want 1", len(enabled))
	}
}

func TestOutboxStorage_Lifecycle(t *testing.T) {
	store := newTestStore(t)
	outbox := NewOutboxStorage(store, testLogger())
	ctx := context.Background()

	alert := &models.OutboxAlert{
		UserID:    "u1",
		Method:    models.MethodEmail,
		AlertType: models.AlertTypeMaterialChange,
		Title:     "t",
		Body:      "first",
		DedupKey:  "k1",
	}
	if err := outbox.Append(ctx, alert); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	byKey, _ := outbox.GetByDedupKey(ctx, "k1")
	if byKey == nil || byKey.ID != alert.ID {
		t.Fatalf("dedup key lookup failed: %+v", byKey)
	}

	if err := outbox.AppendBody(ctx, alert.ID, "second"); err != nil {
		t.Fatalf("AppendBody failed: %v", err)
	}
	got, _ := outbox.GetByID(ctx, alert.ID)
	if got.Body != "first\nsecond" {
		t.Errorf("body = %q", got.Body)
	}

	if err := outbox.IncrementAttempts(ctx, alert.ID, "bounce"); err != nil {
		t.Fatalf("IncrementAttempts failed: %v", err)
	}
	if err := outbox.MarkSent(ctx, alert.ID); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	got, _ = outbox.GetByID(ctx, alert.ID)
	if got.Status != models.AlertStatusSent || got.Attempts != 1 || got.SentAt.IsZero() {
		t.Errorf("sent alert = %+v", got)
	}

	// Terminal alerts cannot be coalesced into.
	if err := outbox.AppendBody(ctx, alert.ID, "late"); err == nil {
		t.Error("expected AppendBody on terminal alert to fail")
	}
}

func TestOutboxStorage_ListDueRespectsSchedule(t *testing.T) {
	store := newTestStore(t)
	outbox := NewOutboxStorage(store, testLogger())
	ctx := context.Background()
	now := time.Now()

	due := &models.OutboxAlert{UserID: "u1", Method: models.MethodEmail, ScheduledFor: now.Add(-time.Minute)}
	notDue := &models.OutboxAlert{UserID: "u1", Method: models.MethodEmail, ScheduledFor: now.Add(time.Hour)}
	outbox.Append(ctx, due)
	outbox.Append(ctx, notDue)

	got, err := outbox.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListDue failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Errorf("due list = %+v", got)
	}
}

// --- KV tests ---

func TestKVStorage_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	kv := NewKVStorage(store, testLogger())
	ctx := context.Background()

	if v, err := kv.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("missing key = %q, %v", v, err)
	}
	if err := kv.Set(ctx, "schema_version", "3"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, _ := kv.Get(ctx, "schema_version"); v != "3" {
		t.Errorf("value = %q", v)
	}
	if err := kv.Delete(ctx, "schema_version"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if v, _ := kv.Get(ctx, "schema_version"); v != "" {
		t.Errorf("deleted value = %q", v)
	}
}
