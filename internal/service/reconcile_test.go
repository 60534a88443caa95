package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"CatalogSync/internal/adapter"
	"CatalogSync/internal/identity"
	"CatalogSync/internal/interfaces"
	"CatalogSync/internal/matching"
	"CatalogSync/internal/model"
	"CatalogSync/internal/normalize"
	"CatalogSync/internal/repository"
	"CatalogSync/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeSource 可控的来源适配器
type fakeSource struct {
	p       model.Provenance
	records []*model.RawRecord
	err     error
	block   chan struct{} // 非 nil 时 FetchRecords 等待关闭或 ctx 取消
	calls   int
	mu      sync.Mutex
}

func (f *fakeSource) Provenance() model.Provenance { return f.p }

func (f *fakeSource) FetchRecords(ctx context.Context) ([]*model.RawRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	// 每次返回新切片，模拟重新读取
	out := make([]*model.RawRecord, len(f.records))
	for i, r := range f.records {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

type fakeSegments struct {
	records  []model.SegmentRecord
	err      error
	required bool
}

func (f *fakeSegments) Enabled() bool  { return true }
func (f *fakeSegments) Required() bool { return f.required }
func (f *fakeSegments) Load(context.Context) ([]model.SegmentRecord, error) {
	return f.records, f.err
}

func fileRecord(name string) *model.RawRecord {
	mod := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	size := int64(1024)
	return &model.RawRecord{
		NaturalKey: "/nas/archive/" + name,
		FileName:   name,
		SizeBytes:  &size,
		ModifiedAt: &mod,
		Raw:        json.RawMessage(`{"filename":"` + name + `"}`),
	}
}

func videoRecord(slug, title string) *model.RawRecord {
	return &model.RawRecord{
		NaturalKey: "https://video.example/" + slug,
		Slug:       slug,
		Title:      title,
		Raw:        json.RawMessage(`{"slug":"` + slug + `"}`),
	}
}

type harness struct {
	svc        *ReconcileService
	store      *store.Store
	filesystem *fakeSource
	streaming  *fakeSource
	external   *fakeSource
	segments   *fakeSegments
	metrics    *Metrics
}

func newHarness(t *testing.T, opts ReconcileOptions) *harness {
	t.Helper()
	ex, err := identity.NewDefaultExtractor()
	require.NoError(t, err)
	log := quietLogger()

	h := &harness{
		store: store.New(),
		filesystem: &fakeSource{p: model.ProvenanceFilesystem, records: []*model.RawRecord{
			fileRecord("ESPN 2007 WSOP SEASON 5 SHOW 14.mov"),
			fileRecord("WSOPE08_Episode_03.mov"),
			fileRecord("STREAM_01.mp4"),
			fileRecord("WSOP 2015 Main Event Day 1A Part 2.mp4"),
			fileRecord("WSOP 2012 Side Event Final.mov"),
			fileRecord("._STREAM_01.mp4"),
			{NaturalKey: "", FileName: "broken.mov"},
		}},
		streaming: &fakeSource{p: model.ProvenanceStreaming, records: []*model.RawRecord{
			videoRecord("wsop-2007-4-me-day1a", "Wsop 2007 4 Me Day1a"),
			videoRecord("wsope-2008-episode-3", "WSOP Europe 2008 Episode 3"),
			videoRecord("wsop-2015-me-day-1a", "WSOP 2015 Main Event Day 1A"),
			videoRecord("wsop-2012-side-nlh-final", "Wsop 2012 Side NLH Final"),
			videoRecord("wsop-2012-side-plo-final", "Wsop 2012 Side PLO Final"),
		}},
		external: &fakeSource{p: model.ProvenanceExternal, records: []*model.RawRecord{
			{NaturalKey: "ext-1", Title: "Unknown Year Highlights"},
		}},
		segments: &fakeSegments{records: []model.SegmentRecord{
			{FileName: "STREAM_01.mp4", InTC: "00:00:00;00", OutTC: "00:01:00;02", UDMStatus: "converted"},
			{FileName: "STREAM_01.mp4", InTC: "00:02:00;02", OutTC: "00:03:00;00", UDMStatus: "pending"},
			{FileName: "stream_01.mp4", InTC: "00:04:00;00", OutTC: "00:05:00;00", UDMStatus: "converted"},
			{FileName: "STREAM_01.mp4", InTC: "00:06:00;00", OutTC: "00:07:00;00", UDMStatus: "failed"},
			{FileName: "STREAM_01.mp4", InTC: "00:08:00;00", OutTC: "00:09:00;00", UDMStatus: "converted"},
			{FileName: "gone.mov", InTC: "00:00:00;00", OutTC: "00:00:01;00"},
			{FileName: "STREAM_01.mp4", InTC: "xx", OutTC: "00:00:01;00"},
		}},
	}
	if opts.Metrics == nil {
		m, err := NewMetrics(prometheus.NewRegistry())
		require.NoError(t, err)
		opts.Metrics = m
	}
	h.metrics = opts.Metrics

	registry := adapter.NewStaticRegistry(log,
		map[model.Provenance]bool{model.ProvenanceFilesystem: true, model.ProvenanceStreaming: true},
		[]interfaces.SourceAdapter{h.filesystem, h.streaming, h.external}...)
	h.svc = NewReconcileService(registry, h.segments, normalize.NewNormalizer(ex, log),
		matching.NewMatcher(map[int]int{2007: 10}, log), h.store, log, opts)
	return h
}

func bestFor(t *testing.T, snap *store.Snapshot, p model.Provenance, key string) *model.MatchVerdict {
	t.Helper()
	e, err := snap.EntryByNaturalKey(p, key)
	require.NoError(t, err, key)
	v := snap.Best(e.EntryID)
	require.NotNil(t, v, key)
	return v
}

func TestRunPublishesScenarioSnapshot(t *testing.T) {
	h := newHarness(t, ReconcileOptions{})
	ctx := context.Background()

	res, err := h.svc.Run(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)

	snap := h.store.Current()
	assert.Equal(t, res.RunID, snap.RunID())
	assert.Equal(t, 11, len(snap.Entries()))

	v := bestFor(t, snap, model.ProvenanceFilesystem, "/nas/archive/ESPN 2007 WSOP SEASON 5 SHOW 14.mov")
	assert.Equal(t, model.StatusComplete, v.Status)
	assert.Equal(t, model.RuleShowNumberBridge, v.RuleID)

	v = bestFor(t, snap, model.ProvenanceFilesystem, "/nas/archive/WSOPE08_Episode_03.mov")
	assert.Equal(t, model.RuleYearRegionEpisode, v.RuleID)
	assert.Equal(t, model.ConfidenceExact, v.Confidence)

	v = bestFor(t, snap, model.ProvenanceFilesystem, "/nas/archive/WSOP 2015 Main Event Day 1A Part 2.mp4")
	assert.Equal(t, model.StatusPartial, v.Status)
	assert.Equal(t, model.RuleYearRegionDay, v.RuleID)

	v = bestFor(t, snap, model.ProvenanceFilesystem, "/nas/archive/WSOP 2012 Side Event Final.mov")
	assert.Equal(t, model.StatusLeftOnly, v.Status)
	v = bestFor(t, snap, model.ProvenanceStreaming, "https://video.example/wsop-2012-side-nlh-final")
	assert.Equal(t, model.StatusRightOnly, v.Status)
	v = bestFor(t, snap, model.ProvenanceExternal, "ext-1")
	assert.Equal(t, model.StatusRightOnly, v.Status)

	v = bestFor(t, snap, model.ProvenanceFilesystem, "/nas/archive/STREAM_01.mp4")
	assert.Equal(t, model.StatusLeftOnly, v.Status)
	fs, err := snap.FileSegments("STREAM_01.mp4")
	require.NoError(t, err)
	assert.Equal(t, model.CoverageRollup{SegmentCount: 5, ConvertedSegments: 3, ConversionRate: 0.6}, fs.Rollup)

	st := snap.Stats()
	assert.Equal(t, 1, st.Errors.MalformedRecords)
	assert.Equal(t, 1, st.Errors.HiddenRecords)
	assert.Equal(t, 1, st.Errors.OrphanSegments)
	assert.Equal(t, 1, st.Errors.MalformedSegments)
	assert.Equal(t, wantFileStats(), st.Matching.Files)
	assert.Equal(t, 0.6, st.Coverage.SegmentConversionRate)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(resultPublished)))
	assert.Equal(t, 5.0, testutil.ToFloat64(h.metrics.Entries.WithLabelValues(string(model.ProvenanceFilesystem))))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.FileVerdicts.WithLabelValues("right_only")))
}

// wantFileStats 测试数据的结论分布：5 个文件 + 3 个没有文件的右侧条目
func wantFileStats() store.FileMatchStats {
	return store.FileMatchStats{Complete: 2, Partial: 1, LeftOnly: 2, RightOnly: 3}
}

func TestRunTwiceYieldsEqualSnapshots(t *testing.T) {
	h := newHarness(t, ReconcileOptions{})
	ctx := context.Background()

	_, err := h.svc.Run(ctx)
	require.NoError(t, err)
	first := h.store.Current()

	// 第二次输入顺序反转
	for i, j := 0, len(h.streaming.records)-1; i < j; i, j = i+1, j-1 {
		h.streaming.records[i], h.streaming.records[j] = h.streaming.records[j], h.streaming.records[i]
	}
	_, err = h.svc.Run(ctx)
	require.NoError(t, err)
	second := h.store.Current()

	assert.NotEqual(t, first.RunID(), second.RunID())
	a, err := json.Marshal(first.Content())
	require.NoError(t, err)
	b, err := json.Marshal(second.Content())
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRequiredSourceFailureKeepsPreviousSnapshot(t *testing.T) {
	h := newHarness(t, ReconcileOptions{})
	ctx := context.Background()

	_, err := h.svc.Run(ctx)
	require.NoError(t, err)
	published := h.store.Current()

	h.streaming.err = errors.New("scraper output missing")
	_, err = h.svc.Run(ctx)
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Same(t, published, h.store.Current())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(resultSkipped)))
}

func TestRequiredSegmentsFailureSkipsPass(t *testing.T) {
	h := newHarness(t, ReconcileOptions{})
	h.segments.required = true
	h.segments.err = errors.New("sheet export missing")

	_, err := h.svc.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Empty(t, h.store.Current().Entries())
}

func TestOptionalSourceFailureIsTreatedAsEmpty(t *testing.T) {
	h := newHarness(t, ReconcileOptions{})
	h.external.err = errors.New("timeout")
	h.segments.err = errors.New("sheet unreadable")

	_, err := h.svc.Run(context.Background())
	require.NoError(t, err)
	snap := h.store.Current()
	_, err = snap.EntryByNaturalKey(model.ProvenanceExternal, "ext-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, snap.Stats().Coverage.TotalSegments)
}

func TestMissingRequiredAdapter(t *testing.T) {
	ex, err := identity.NewDefaultExtractor()
	require.NoError(t, err)
	log := quietLogger()
	st := store.New()
	registry := adapter.NewStaticRegistry(log, map[model.Provenance]bool{model.ProvenanceStreaming: true},
		&fakeSource{p: model.ProvenanceFilesystem})
	svc := NewReconcileService(registry, nil, normalize.NewNormalizer(ex, log), matching.NewMatcher(nil, log), st, log, ReconcileOptions{})

	_, err = svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestCancelledPassKeepsPreviousSnapshot(t *testing.T) {
	h := newHarness(t, ReconcileOptions{})
	_, err := h.svc.Run(context.Background())
	require.NoError(t, err)
	published := h.store.Current()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Same(t, published, h.store.Current())
}

func TestConcurrentPassIsRejected(t *testing.T) {
	h := newHarness(t, ReconcileOptions{})
	h.streaming.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.svc.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		h.streaming.mu.Lock()
		defer h.streaming.mu.Unlock()
		return h.streaming.calls == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, err := h.svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)

	close(h.streaming.block)
	require.NoError(t, <-done)
}

func openAuditDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.AutoMigrate(db))
	return db
}

func TestRunPersistsAuditAndDump(t *testing.T) {
	repo := repository.NewAuditRepository(openAuditDB(t))
	dir := t.TempDir()
	h := newHarness(t, ReconcileOptions{Audit: repo, DumpDir: dir})
	ctx := context.Background()

	res, err := h.svc.Run(ctx)
	require.NoError(t, err)

	run, err := repo.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, resultPublished, run.Status)
	assert.Equal(t, 11, run.EntryCount)
	assert.Equal(t, res.Verdicts, run.VerdictCount)

	verdicts, err := repo.ListVerdicts(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, verdicts, res.Verdicts)

	files, err := filepath.Glob(filepath.Join(dir, "snapshot-*-"+res.RunID+".json"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var dump snapshotDump
	require.NoError(t, json.Unmarshal(data, &dump))
	assert.Equal(t, res.RunID, dump.RunID)
	assert.Len(t, dump.Content.Entries, 11)

	// 失败批次同样留痕
	h.streaming.err = errors.New("down")
	_, err = h.svc.Run(ctx)
	require.Error(t, err)
	list, total, err := repo.ListRuns(ctx, repository.RunFilter{Status: resultSkipped}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.NotEmpty(t, list[0].Error)
}

func TestStartStopsOnCancel(t *testing.T) {
	h := newHarness(t, ReconcileOptions{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.svc.Start(ctx, 10*time.Millisecond, true)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(resultPublished)) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
