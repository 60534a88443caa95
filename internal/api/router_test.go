package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"CatalogSync/internal/config"
	"CatalogSync/internal/identity"
	"CatalogSync/internal/model"
	"CatalogSync/internal/nas"
	"CatalogSync/internal/service"
	"CatalogSync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconciler struct {
	result *service.PassResult
	err    error
}

func (f *fakeReconciler) Run(context.Context) (*service.PassResult, error) {
	return f.result, f.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func publishedStore() *store.Store {
	id := model.TournamentIdentity{Brand: model.BrandMain, Year: 2015, Region: model.RegionMain, EventType: model.EventMain, Day: "1A"}
	file := &model.CatalogEntry{
		EntryID:      model.BuildEntryID(model.ProvenanceFilesystem, "/nas/WSOP_2015_ME_D1A.mov"),
		Provenance:   model.ProvenanceFilesystem,
		NaturalKey:   "/nas/WSOP_2015_ME_D1A.mov",
		DisplayName:  "WSOP_2015_ME_D1A.mov",
		FileName:     "WSOP_2015_ME_D1A.mov",
		Identity:     id,
		MatchedRules: []string{"brand_wsop", "year_brand_adjacent", "day_number", "event_main"},
	}
	lonely := &model.CatalogEntry{
		EntryID:     model.BuildEntryID(model.ProvenanceFilesystem, "/nas/misc/B–roll.mov"),
		Provenance:  model.ProvenanceFilesystem,
		NaturalKey:  "/nas/misc/B–roll.mov",
		DisplayName: "B–roll.mov",
		FileName:    "B–roll.mov",
		Identity:    model.UnknownIdentity(),
	}
	stream := &model.CatalogEntry{
		EntryID:     model.BuildEntryID(model.ProvenanceStreaming, "https://v.example/wsop-2015-me-day-1a"),
		Provenance:  model.ProvenanceStreaming,
		NaturalKey:  "https://v.example/wsop-2015-me-day-1a",
		DisplayName: "WSOP 2015 Main Event Day 1A",
		Identity:    id,
	}
	segs := []model.Segment{{FileEntryID: file.EntryID, RowNumber: 1, InFrames: 0, OutFrames: 30, UDMStatus: model.UDMConverted}}
	st := store.New()
	st.Publish(store.Build(store.Input{
		RunID:   "run-1",
		BuiltAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Entries: []*model.CatalogEntry{file, lonely, stream},
		Verdicts: []*model.MatchVerdict{{
			LeftEntryID: file.EntryID, RightEntryID: stream.EntryID,
			Status: model.StatusComplete, Confidence: model.ConfidenceStrong, RuleID: model.RuleYearRegionDay, Layer: 3,
		}},
		Segments: map[string][]model.Segment{file.EntryID: segs},
		Rollups:  map[string]model.CoverageRollup{file.EntryID: {SegmentCount: 1, ConvertedSegments: 1, ConversionRate: 1}},
	}))
	return st
}

func newTestRouter(t *testing.T, rec Reconciler, nasRoot string, gatherer prometheus.Gatherer) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := quietLogger()
	st := publishedStore()
	extractor, err := identity.NewDefaultExtractor()
	require.NoError(t, err)
	h := Handlers{
		Matching: NewMatchingHandler(service.NewMatrixService(st, nil, logger), logger),
		Sync:     NewSyncHandler(rec, logger),
		NAS:      NewNASHandler(nas.NewService(nasRoot, 3, time.Minute, logger), logger),
		Pattern:  NewPatternHandler(service.NewPatternService(st, extractor, logger), logger),
	}
	cfg := &config.ServerConfig{CORSOrigins: []string{"*"}}
	return NewRouter(cfg, h, gatherer, logger), st
}

func do(t *testing.T, r http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestMatrixEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{}, "", nil)

	w := do(t, r, http.MethodGet, "/api/matching/matrix?provenance=filesystem&status=complete")
	require.Equal(t, http.StatusOK, w.Code)
	var res service.MatrixResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, res.Items, 1)
	assert.Equal(t, model.StatusComplete, res.Items[0].Status)
	assert.Equal(t, "WSOP 2015 Main Event Day 1A", res.Items[0].CounterpartName)

	w = do(t, r, http.MethodGet, "/api/matching/matrix?search=day%201a")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Total)

	w = do(t, r, http.MethodGet, "/api/matching/matrix?status=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{}, "", nil)

	w := do(t, r, http.MethodGet, "/api/matching/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var st store.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Sources[model.ProvenanceFilesystem].TotalEntries)
	assert.Equal(t, 1, st.Matching.Files.Complete)
	assert.Equal(t, 1, st.Coverage.TotalSegments)
}

func TestFileSegmentsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{}, "", nil)

	w := do(t, r, http.MethodGet, "/api/matching/file/wsop_2015_me_d1a.MOV/segments")
	require.Equal(t, http.StatusOK, w.Code)
	var fs store.FileSegments
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fs))
	assert.Len(t, fs.Segments, 1)
	assert.Equal(t, 1.0, fs.Rollup.ConversionRate)

	w = do(t, r, http.MethodGet, "/api/matching/file/missing.mov/segments")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEntryAndRunsEndpoints(t *testing.T) {
	r, st := newTestRouter(t, &fakeReconciler{}, "", nil)
	id := st.Current().Entries()[0].EntryID

	w := do(t, r, http.MethodGet, "/api/matching/entries/"+id)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodGet, "/api/matching/entries/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/matching/runs")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "audit database is not configured")
}

func TestReconcileEndpoint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "published", want: http.StatusOK},
		{name: "in progress", err: service.ErrPassInProgress, want: http.StatusConflict},
		{name: "source unavailable", err: service.ErrSourceUnavailable, want: http.StatusServiceUnavailable},
		{name: "other failure", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeReconciler{err: tt.err}
			if tt.err == nil {
				rec.result = &service.PassResult{RunID: "run-2", Entries: 2}
			}
			r, _ := newTestRouter(t, rec, "", nil)
			w := do(t, r, http.MethodPost, "/api/matching/reconcile")
			assert.Equal(t, tt.want, w.Code)
			if tt.err == nil {
				assert.Contains(t, w.Body.String(), `"run_id":"run-2"`)
			}
		})
	}
}

func TestPatternStatsAndListEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{}, "", nil)

	w := do(t, r, http.MethodGet, "/api/pattern/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var sum service.PatternSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, 2, sum.TotalFiles)
	assert.Equal(t, 1, sum.MatchedFiles)
	assert.Equal(t, 1, sum.UnmatchedFiles)
	assert.Equal(t, 50.0, sum.MatchRate)
	assert.Positive(t, sum.TotalRules)

	w = do(t, r, http.MethodGet, "/api/pattern/list?limit=4")
	require.Equal(t, http.StatusOK, w.Code)
	var list service.RuleList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, sum.TotalRules, list.Total)
	require.Len(t, list.Rules, 4)
	for _, rule := range list.Rules {
		assert.Equal(t, 1, rule.MatchCount, rule.ID)
	}

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/pattern/list?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/pattern/list?limit=101").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/pattern/unmatched?offset=-1").Code)
}

func TestPatternUnmatchedEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{}, "", nil)

	w := do(t, r, http.MethodGet, "/api/pattern/unmatched")
	require.Equal(t, http.StatusOK, w.Code)
	var un service.UnmatchedList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &un))
	assert.Equal(t, 1, un.Total)
	assert.Equal(t, 50.0, un.Percentage)
	require.Len(t, un.Files, 1)
	assert.Equal(t, "B–roll.mov", un.Files[0].FileName)
	assert.Equal(t, service.UnmatchedDashVariant, un.Files[0].SuggestedCategory)
	assert.Equal(t, 1, un.Categories[service.UnmatchedDashVariant])
}

func TestPatternFileMatchEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{}, "", nil)

	w := do(t, r, http.MethodGet, "/api/pattern/files/WSOP_2015_ME_D1A.mov/match")
	require.Equal(t, http.StatusOK, w.Code)
	var m service.FileMatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.True(t, m.InCatalog)
	assert.True(t, m.Matched)
	assert.Equal(t, 2015, m.Detail.Identity.Year)
	require.NotEmpty(t, m.Detail.Hits)
	assert.Equal(t, "brand_wsop", m.Detail.Hits[0].RuleID)

	w = do(t, r, http.MethodGet, "/api/pattern/files/Poker_Highlights_1920x1080.mp4/match")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.False(t, m.InCatalog)
	assert.False(t, m.Matched)
	assert.Empty(t, m.Detail.Hits)
}

func TestPatternTestEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{}, "", nil)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/pattern/test", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	w := post(`{"text": "hcl_clip_2000kbps.mp4"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res service.PatternTestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Matched)
	require.NotNil(t, res.Detail)
	assert.Equal(t, []string{"brand_hcl"}, res.Detail.RuleIDs())
	assert.Zero(t, res.Detail.Identity.Year)

	w = post(`{"text": "WSOP 2015 ME", "pattern": "wsop (\\d{4})"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, map[string]string{"1": "2015"}, res.Groups)

	assert.Equal(t, http.StatusBadRequest, post(`{"text": "x", "pattern": "("}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
}

func TestNASEndpoints(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "WSOP", "2015"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "WSOP", "2015", "ME_D1A.mov"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "WSOP", "2015", "notes.txt"), []byte("x"), 0o644))
	r, _ := newTestRouter(t, &fakeReconciler{}, root, nil)

	w := do(t, r, http.MethodGet, "/api/nas/folders")
	require.Equal(t, http.StatusOK, w.Code)
	var tree nas.Folder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	require.Len(t, tree.Children, 1)
	assert.Equal(t, "WSOP", tree.Children[0].Name)

	w = do(t, r, http.MethodGet, "/api/nas/files?path=/WSOP/2015")
	require.Equal(t, http.StatusOK, w.Code)
	var listing nas.Listing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Total)
	assert.Equal(t, "ME_D1A.mov", listing.Files[0].Name)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/nas/files?path=../etc").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/nas/files?path=/nope").Code)
}

func TestNASNotConfigured(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{}, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, r, http.MethodGet, "/api/nas/folders").Code)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := service.NewMetrics(reg)
	require.NoError(t, err)
	r, _ := newTestRouter(t, &fakeReconciler{}, "", reg)

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz").Code)

	w := do(t, r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "catalogsync_last_success_timestamp_seconds"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsDisabledWithoutGatherer(t *testing.T) {
	r, _ := newTestRouter(t, &fakeReconciler{}, "", nil)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/metrics").Code)
}
