package service

import (
	"fmt"
	"time"

	"CatalogSync/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 对账相关的 Prometheus 指标
type Metrics struct {
	RunsTotal       *prometheus.CounterVec   // 按结果统计对账次数：published / failed / skipped
	RunDuration     prometheus.Histogram     // 单次对账耗时
	StageDuration   *prometheus.HistogramVec // 各阶段耗时：load / normalize / match / segments / publish
	Entries         *prometheus.GaugeVec     // 当前快照各来源条目数
	FileVerdicts    *prometheus.GaugeVec     // 当前快照文件条目按状态计数
	Segments        *prometheus.GaugeVec     // 片段：attached / orphan / malformed
	LastSuccessTime prometheus.Gauge
}

// NewMetrics 创建并注册指标；registerer 为 nil 时不注册（测试用）
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalogsync_reconcile_runs_total",
			Help: "Total number of reconciliation passes by result",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalogsync_reconcile_duration_seconds",
			Help:    "Wall time of a reconciliation pass",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalogsync_reconcile_stage_duration_seconds",
			Help:    "Wall time of each reconciliation stage",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),
		Entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalogsync_catalog_entries",
			Help: "Catalog entries in the published snapshot by provenance",
		}, []string{"provenance"}),
		FileVerdicts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalogsync_file_verdicts",
			Help: "Filesystem entries in the published snapshot by strongest verdict status",
		}, []string{"status"}),
		Segments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "catalogsync_segments",
			Help: "Segment records in the published snapshot by outcome",
		}, []string{"outcome"}),
		LastSuccessTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalogsync_last_success_timestamp_seconds",
			Help: "Unix time of the last published snapshot",
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.RunsTotal, m.RunDuration, m.StageDuration, m.Entries, m.FileVerdicts, m.Segments, m.LastSuccessTime} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("注册指标失败: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) observeStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeRun(result string, started time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	if result != resultSkipped {
		m.RunDuration.Observe(time.Since(started).Seconds())
	}
}

// observeSnapshot 用新发布快照的统计刷新 gauge
func (m *Metrics) observeSnapshot(st store.Stats, at time.Time) {
	if m == nil {
		return
	}
	for p, src := range st.Sources {
		m.Entries.WithLabelValues(string(p)).Set(float64(src.TotalEntries))
	}
	m.FileVerdicts.WithLabelValues("complete").Set(float64(st.Matching.Files.Complete))
	m.FileVerdicts.WithLabelValues("partial").Set(float64(st.Matching.Files.Partial))
	m.FileVerdicts.WithLabelValues("left_only").Set(float64(st.Matching.Files.LeftOnly))
	m.FileVerdicts.WithLabelValues("right_only").Set(float64(st.Matching.Files.RightOnly))
	m.Segments.WithLabelValues("attached").Set(float64(st.Coverage.TotalSegments))
	m.Segments.WithLabelValues("orphan").Set(float64(st.Errors.OrphanSegments))
	m.Segments.WithLabelValues("malformed").Set(float64(st.Errors.MalformedSegments))
	m.LastSuccessTime.Set(float64(at.Unix()))
}
