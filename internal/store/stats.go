package store

import (
	"time"

	"CatalogSync/internal/model"
)

// SourceStats 单个来源目录的汇总
type SourceStats struct {
	TotalEntries   int `json:"total_entries"`
	TotalMatched   int `json:"total_matched"`
	TotalUnmatched int `json:"total_unmatched"`
	TotalRecords   int `json:"total_records"` // 规范化前的原始记录数
}

// FileMatchStats 文件系统条目按最强结论状态计数
type FileMatchStats struct {
	Complete  int `json:"complete"`
	Partial   int `json:"partial"`
	LeftOnly  int `json:"left_only"`
	RightOnly int `json:"right_only"`
}

// MatchingStats 匹配汇总
type MatchingStats struct {
	Files    FileMatchStats `json:"files"`
	Verdicts int            `json:"verdicts"`
	ByRule   map[string]int `json:"by_rule"`
}

// CoverageStats 片段覆盖汇总
type CoverageStats struct {
	FilesWithSegments     int     `json:"files_with_segments"`
	TotalSegments         int     `json:"total_segments"`
	ConvertedSegments     int     `json:"converted_segments"`
	SegmentConversionRate float64 `json:"segment_conversion_rate"`
	FilesWithOverlap      int     `json:"files_with_overlap"`
}

// ErrorStats 可恢复错误计数
type ErrorStats struct {
	MalformedRecords   int `json:"malformed_records"`
	HiddenRecords      int `json:"hidden_records"`
	DuplicateRecords   int `json:"duplicate_records"`
	IdentityUnresolved int `json:"identity_unresolved"`
	OrphanSegments     int `json:"orphan_segments"`
	MalformedSegments  int `json:"malformed_segments"`
	AmbiguousSegments  int `json:"ambiguous_segments"`
}

// SnapshotMeta 快照批次信息
type SnapshotMeta struct {
	RunID   string     `json:"run_id,omitempty"`
	BuiltAt *time.Time `json:"built_at,omitempty"`
}

// Stats stats 接口的返回体
type Stats struct {
	Sources  map[model.Provenance]SourceStats `json:"sources"`
	Matching MatchingStats                    `json:"matching"`
	Coverage CoverageStats                    `json:"coverage"`
	Errors   ErrorStats                       `json:"errors"`
	Snapshot SnapshotMeta                     `json:"snapshot"`
}

// Stats 快照统计（构建时一次算好）
func (s *Snapshot) Stats() Stats { return s.stats }

func (s *Snapshot) computeStats(in Input) Stats {
	st := Stats{
		Sources: map[model.Provenance]SourceStats{
			model.ProvenanceStreaming:  {},
			model.ProvenanceFilesystem: {},
			model.ProvenanceExternal:   {},
		},
		Matching: MatchingStats{Verdicts: len(s.verdicts), ByRule: map[string]int{}},
	}
	if s.runID != "" {
		st.Snapshot.RunID = s.runID
	}
	if !s.builtAt.IsZero() {
		t := s.builtAt
		st.Snapshot.BuiltAt = &t
	}

	for _, e := range s.entries {
		src := st.Sources[e.Provenance]
		src.TotalEntries++
		best := s.best[e.EntryID]
		if best != nil && best.Status.Paired() {
			src.TotalMatched++
		} else {
			src.TotalUnmatched++
		}
		st.Sources[e.Provenance] = src

		if best == nil {
			continue
		}
		// 文件（左侧）按最强结论计数；right_only 只可能出现在右侧条目上
		if e.Provenance != model.ProvenanceFilesystem {
			if best.Status == model.StatusRightOnly {
				st.Matching.Files.RightOnly++
			}
			continue
		}
		switch best.Status {
		case model.StatusComplete:
			st.Matching.Files.Complete++
		case model.StatusPartial:
			st.Matching.Files.Partial++
		case model.StatusLeftOnly:
			st.Matching.Files.LeftOnly++
		}
	}
	for _, v := range s.verdicts {
		st.Matching.ByRule[v.RuleID]++
	}

	for p, ns := range in.SourceStats {
		src := st.Sources[p]
		src.TotalRecords = ns.Input
		st.Sources[p] = src
		st.Errors.MalformedRecords += ns.Malformed
		st.Errors.HiddenRecords += ns.Hidden
		st.Errors.DuplicateRecords += ns.Duplicates
		st.Errors.IdentityUnresolved += ns.Unresolved
	}

	for _, r := range s.rollups {
		if r.SegmentCount > 0 {
			st.Coverage.FilesWithSegments++
		}
		if r.Overlap {
			st.Coverage.FilesWithOverlap++
		}
		st.Coverage.TotalSegments += r.SegmentCount
		st.Coverage.ConvertedSegments += r.ConvertedSegments
	}
	if st.Coverage.TotalSegments > 0 {
		st.Coverage.SegmentConversionRate = float64(st.Coverage.ConvertedSegments) / float64(st.Coverage.TotalSegments)
	}
	st.Errors.OrphanSegments = in.SegmentStats.Orphans
	st.Errors.MalformedSegments = in.SegmentStats.Malformed
	st.Errors.AmbiguousSegments = in.SegmentStats.Ambiguous
	return st
}
