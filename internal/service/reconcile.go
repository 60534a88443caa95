package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"CatalogSync/internal/adapter"
	"CatalogSync/internal/matching"
	"CatalogSync/internal/model"
	"CatalogSync/internal/normalize"
	"CatalogSync/internal/repository"
	"CatalogSync/internal/segment"
	"CatalogSync/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSourceUnavailable 必需来源加载失败，本次对账跳过，保留上一次快照
	ErrSourceUnavailable = errors.New("required source unavailable")
	// ErrPassInProgress 已有对账在执行
	ErrPassInProgress = errors.New("reconciliation pass already in progress")
)

const (
	resultPublished = "published"
	resultFailed    = "failed"
	resultSkipped   = "skipped"
)

// SegmentLoader 片段表加载器
type SegmentLoader interface {
	Enabled() bool
	Required() bool
	Load(ctx context.Context) ([]model.SegmentRecord, error)
}

// ReconcileOptions 可选依赖
type ReconcileOptions struct {
	Audit   repository.AuditRepository // 为 nil 时不落库
	DumpDir string                     // 非空时每次发布写一份 JSON 快照
	Metrics *Metrics
	// OnPublish 快照发布后回调（如清空 NAS 浏览缓存）
	OnPublish func(*store.Snapshot)
}

// ReconcileService 对账流水线：加载来源 -> 规范化 -> 匹配 -> 片段挂载 -> 发布快照。
// 同一时刻只允许一次对账，失败或取消时保留上一次快照。
type ReconcileService struct {
	sources    *adapter.SourceRegistry
	segments   SegmentLoader
	normalizer *normalize.Normalizer
	matcher    *matching.Matcher
	store      *store.Store
	audit      repository.AuditRepository
	dumpDir    string
	metrics    *Metrics
	onPublish  func(*store.Snapshot)
	logger     *logrus.Logger

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

func NewReconcileService(sources *adapter.SourceRegistry, segments SegmentLoader, normalizer *normalize.Normalizer,
	matcher *matching.Matcher, st *store.Store, logger *logrus.Logger, opts ReconcileOptions) *ReconcileService {
	return &ReconcileService{
		sources:    sources,
		segments:   segments,
		normalizer: normalizer,
		matcher:    matcher,
		store:      st,
		audit:      opts.Audit,
		dumpDir:    opts.DumpDir,
		metrics:    opts.Metrics,
		onPublish:  opts.OnPublish,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// PassResult 一次对账的结果摘要
type PassResult struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Entries    int         `json:"entries"`
	Verdicts   int         `json:"verdicts"`
	Stats      store.Stats `json:"stats"`
}

// Run 执行一次对账。已有对账在执行时立即返回 ErrPassInProgress
func (s *ReconcileService) Run(ctx context.Context) (*PassResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer s.mu.Unlock()

	runID := s.newID()
	started := s.now()
	log := s.logger.WithField("run_id", runID)
	log.Info("开始对账")

	snap, err := s.build(ctx, runID)
	if err != nil {
		result := resultFailed
		if errors.Is(err, ErrSourceUnavailable) {
			result = resultSkipped
		}
		s.metrics.observeRun(result, started)
		log.WithError(err).WithField("result", result).Warn("对账未发布，保留上一次快照")
		s.recordFailure(ctx, runID, started, err)
		return nil, err
	}

	publishStart := time.Now()
	s.store.Publish(snap)
	s.metrics.observeStage("publish", publishStart)
	s.metrics.observeRun(resultPublished, started)
	s.metrics.observeSnapshot(snap.Stats(), snap.BuiltAt())
	if s.onPublish != nil {
		s.onPublish(snap)
	}

	res := &PassResult{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: snap.BuiltAt(),
		Entries:    len(snap.Entries()),
		Verdicts:   len(snap.Verdicts()),
		Stats:      snap.Stats(),
	}
	log.WithFields(logrus.Fields{
		"entries":  res.Entries,
		"verdicts": res.Verdicts,
		"complete": res.Stats.Matching.Files.Complete,
		"partial":  res.Stats.Matching.Files.Partial,
	}).Info("对账完成，快照已发布")

	s.persist(ctx, snap, started)
	s.dump(snap)
	return res, nil
}

// loaded 一次加载得到的全部原始输入
type loaded struct {
	records  map[model.Provenance][]*model.RawRecord
	segments []model.SegmentRecord
}

func (s *ReconcileService) build(ctx context.Context, runID string) (*store.Snapshot, error) {
	t := time.Now()
	in, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.observeStage("load", t)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// C2 规范化
	t = time.Now()
	sourceStats := make(map[model.Provenance]normalize.Stats, len(in.records))
	var left, right, all []*model.CatalogEntry
	for _, p := range []model.Provenance{model.ProvenanceExternal, model.ProvenanceFilesystem, model.ProvenanceStreaming} {
		raws, ok := in.records[p]
		if !ok {
			continue
		}
		res := s.normalizer.Normalize(p, raws)
		sourceStats[p] = res.Stats
		all = append(all, res.Entries...)
		if p == model.ProvenanceFilesystem {
			left = append(left, res.Entries...)
		} else {
			right = append(right, res.Entries...)
		}
	}
	s.metrics.observeStage("normalize", t)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// C3 匹配
	t = time.Now()
	verdicts, err := s.matcher.Match(left, right)
	if err != nil {
		return nil, fmt.Errorf("匹配失败: %w", err)
	}
	s.metrics.observeStage("match", t)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// C4 片段挂载
	t = time.Now()
	attached := segment.Attach(in.segments, left)
	s.metrics.observeStage("segments", t)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// C5 构建快照
	return store.Build(store.Input{
		RunID:        runID,
		BuiltAt:      s.now(),
		Entries:      all,
		Verdicts:     verdicts,
		Segments:     attached.Segments,
		Rollups:      attached.Rollups,
		Orphans:      attached.Orphans,
		SourceStats:  sourceStats,
		SegmentStats: attached.Stats,
	}), nil
}

// load 并发拉取各来源与片段表；必需来源失败返回 ErrSourceUnavailable，可选来源失败按空处理
func (s *ReconcileService) load(ctx context.Context) (*loaded, error) {
	for _, p := range []model.Provenance{model.ProvenanceExternal, model.ProvenanceFilesystem, model.ProvenanceStreaming} {
		if !s.sources.Required(p) {
			continue
		}
		if _, err := s.sources.GetAdapter(p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, p, err)
		}
	}

	adapters := s.sources.Adapters()
	results := make([][]*model.RawRecord, len(adapters))
	var segs []model.SegmentRecord

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			recs, err := a.FetchRecords(gctx)
			if err == nil {
				results[i] = recs
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p := a.Provenance()
			if s.sources.Required(p) {
				return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, p, err)
			}
			s.logger.WithError(err).WithField("source", p).Warn("可选来源加载失败，按空目录处理")
			results[i] = []*model.RawRecord{}
			return nil
		})
	}
	if s.segments != nil && s.segments.Enabled() {
		g.Go(func() error {
			recs, err := s.segments.Load(gctx)
			if err == nil {
				segs = recs
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.segments.Required() {
				return fmt.Errorf("%w: segments: %v", ErrSourceUnavailable, err)
			}
			s.logger.WithError(err).Warn("片段表加载失败，本次不挂载片段")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &loaded{records: make(map[model.Provenance][]*model.RawRecord, len(adapters)), segments: segs}
	for i, a := range adapters {
		out.records[a.Provenance()] = results[i]
		s.logger.WithFields(logrus.Fields{"source": a.Provenance(), "records": len(results[i])}).Debug("来源加载完成")
	}
	return out, nil
}

// persist 审计落库失败只记日志，不影响已发布的快照
func (s *ReconcileService) persist(ctx context.Context, snap *store.Snapshot, started time.Time) {
	if s.audit == nil {
		return
	}
	stats, err := json.Marshal(snap.Stats())
	if err != nil {
		s.logger.WithError(err).Warn("序列化统计失败")
		return
	}
	run := &model.ReconcileRun{
		RunUUID:    snap.RunID(),
		StartedAt:  started,
		FinishedAt: snap.BuiltAt(),
		Status:     resultPublished,
		EntryCount: len(snap.Entries()),
		Stats:      stats,
	}
	if err := s.audit.SaveRun(context.WithoutCancel(ctx), run, snap.Verdicts()); err != nil {
		s.logger.WithError(err).WithField("run_id", snap.RunID()).Warn("写入对账审计失败")
	}
}

func (s *ReconcileService) recordFailure(ctx context.Context, runID string, started time.Time, cause error) {
	if s.audit == nil {
		return
	}
	status := resultFailed
	if errors.Is(cause, ErrSourceUnavailable) {
		status = resultSkipped
	}
	run := &model.ReconcileRun{
		RunUUID:    runID,
		StartedAt:  started,
		FinishedAt: s.now(),
		Status:     status,
		Stats:      []byte("{}"),
		Error:      cause.Error(),
	}
	if err := s.audit.SaveRun(context.WithoutCancel(ctx), run, nil); err != nil {
		s.logger.WithError(err).WithField("run_id", runID).Warn("写入失败批次审计失败")
	}
}

// snapshotDump 审计用 JSON 快照文件内容
type snapshotDump struct {
	RunID   string        `json:"run_id"`
	BuiltAt time.Time     `json:"built_at"`
	Content store.Content `json:"content"`
}

func (s *ReconcileService) dump(snap *store.Snapshot) {
	if s.dumpDir == "" {
		return
	}
	data, err := json.MarshalIndent(snapshotDump{RunID: snap.RunID(), BuiltAt: snap.BuiltAt(), Content: snap.Content()}, "", "  ")
	if err != nil {
		s.logger.WithError(err).Warn("序列化快照失败")
		return
	}
	if err := os.MkdirAll(s.dumpDir, 0o755); err != nil {
		s.logger.WithError(err).WithField("dir", s.dumpDir).Warn("创建快照目录失败")
		return
	}
	name := filepath.Join(s.dumpDir, fmt.Sprintf("snapshot-%s-%s.json", snap.BuiltAt().UTC().Format("20060102T150405Z"), snap.RunID()))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		s.logger.WithError(err).WithField("file", name).Warn("写入快照文件失败")
		return
	}
	s.logger.WithField("file", name).Debug("快照已写入")
}

// Start 按间隔循环对账直到 ctx 取消；onStart 为 true 时先立即执行一次
func (s *ReconcileService) Start(ctx context.Context, interval time.Duration, onStart bool) {
	if onStart {
		s.runLogged(ctx)
	}
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("定时对账已停止")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *ReconcileService) runLogged(ctx context.Context) {
	if _, err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WithError(err).Warn("定时对账失败")
	}
}
