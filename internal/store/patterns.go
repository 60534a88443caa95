package store

import (
	"math"
	"sort"
	"strings"

	"CatalogSync/internal/model"
)

// PatternStats 文件名规则命中统计，只统计文件系统条目
type PatternStats struct {
	TotalFiles     int            `json:"total_files"`
	MatchedFiles   int            `json:"matched_files"`
	UnmatchedFiles int            `json:"unmatched_files"`
	MatchRate      float64        `json:"match_rate"` // 百分比，保留一位小数
	RuleHits       map[string]int `json:"rule_hits"`
}

// computePatterns 统计规则命中并收集没有任何规则命中的文件（按文件名、entry_id 排序）
func computePatterns(entries []*model.CatalogEntry) (PatternStats, []*model.CatalogEntry) {
	ps := PatternStats{RuleHits: map[string]int{}}
	var unmatched []*model.CatalogEntry
	for _, e := range entries {
		if e.Provenance != model.ProvenanceFilesystem {
			continue
		}
		ps.TotalFiles++
		if len(e.MatchedRules) == 0 {
			unmatched = append(unmatched, e)
			continue
		}
		ps.MatchedFiles++
		for _, id := range e.MatchedRules {
			ps.RuleHits[id]++
		}
	}
	ps.UnmatchedFiles = len(unmatched)
	if ps.TotalFiles > 0 {
		ps.MatchRate = math.Round(float64(ps.MatchedFiles)/float64(ps.TotalFiles)*1000) / 10
	}
	sort.SliceStable(unmatched, func(i, j int) bool {
		ni, nj := strings.ToLower(unmatched[i].FileName), strings.ToLower(unmatched[j].FileName)
		if ni != nj {
			return ni < nj
		}
		return unmatched[i].EntryID < unmatched[j].EntryID
	})
	return ps, unmatched
}

// Patterns 规则命中统计；RuleHits 只含至少命中一次的规则，调用方不得修改
func (s *Snapshot) Patterns() PatternStats { return s.patterns }

// UnmatchedFiles 没有任何规则命中的文件条目；调用方不得修改
func (s *Snapshot) UnmatchedFiles() []*model.CatalogEntry { return s.unmatchedFiles }

// FileEntry 按文件名（不区分大小写）查询文件条目；同名取 entry_id 最小者
func (s *Snapshot) FileEntry(fileName string) (*model.CatalogEntry, error) {
	idx := s.byFileName[strings.ToLower(strings.TrimSpace(fileName))]
	if len(idx) == 0 {
		return nil, ErrNotFound
	}
	return s.entries[idx[0]], nil
}
