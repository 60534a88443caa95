package service

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"CatalogSync/internal/identity"
	"CatalogSync/internal/store"

	"github.com/sirupsen/logrus"
)

// ErrInvalidPattern 试匹配请求非法（空文本或正则无法编译）
var ErrInvalidPattern = errors.New("invalid pattern request")

// 未命中文件的粗分类，提示规则表缺什么
const (
	UnmatchedDashVariant  = "dash_variant"
	UnmatchedSpecialChars = "special_symbol"
	UnmatchedNonStandard  = "non_standard"
)

// PatternService 身份抽取规则的命中分析：统计基于当前快照，试匹配直接调用抽取器
type PatternService struct {
	store     *store.Store
	extractor *identity.Extractor
	logger    *logrus.Logger
}

func NewPatternService(st *store.Store, extractor *identity.Extractor, logger *logrus.Logger) *PatternService {
	return &PatternService{store: st, extractor: extractor, logger: logger}
}

// PatternSummary 规则命中总览
type PatternSummary struct {
	RunID          string  `json:"run_id,omitempty"`
	TotalFiles     int     `json:"total_files"`
	MatchedFiles   int     `json:"matched_files"`
	UnmatchedFiles int     `json:"unmatched_files"`
	MatchRate      float64 `json:"match_rate"`
	TotalRules     int     `json:"total_rules"`
}

// RuleInfo 单条规则及其在当前快照中的命中次数
type RuleInfo struct {
	ID         string `json:"id"`
	Layer      string `json:"layer"`
	Pattern    string `json:"pattern"`
	Priority   int    `json:"priority"`
	MatchCount int    `json:"match_count"`
}

// RuleList 规则列表分页结果
type RuleList struct {
	Total int        `json:"total"`
	Rules []RuleInfo `json:"rules"`
}

// UnmatchedFile 未命中任何规则的文件
type UnmatchedFile struct {
	EntryID           string `json:"entry_id"`
	FileName          string `json:"file_name"`
	Path              string `json:"path"`
	Reason            string `json:"reason"`
	SuggestedCategory string `json:"suggested_category"`
}

// UnmatchedList 未命中文件分页结果；Categories 统计全部未命中文件
type UnmatchedList struct {
	Total      int             `json:"total"`
	Percentage float64         `json:"percentage"`
	Categories map[string]int  `json:"categories"`
	Files      []UnmatchedFile `json:"files"`
}

// FileMatch 单个文件名的抽取明细；InCatalog 表示当前快照中存在同名文件
type FileMatch struct {
	FileName  string          `json:"file_name"`
	InCatalog bool            `json:"in_catalog"`
	EntryID   string          `json:"entry_id,omitempty"`
	Matched   bool            `json:"matched"`
	Detail    identity.Detail `json:"detail"`
}

// PatternTestRequest 试匹配：Pattern 为空时按规则表抽取，否则只对规范化文本试跑该正则
type PatternTestRequest struct {
	Text    string `json:"text" binding:"required"`
	Pattern string `json:"pattern"`
}

// PatternTestResult 试匹配结果
type PatternTestResult struct {
	Matched    bool              `json:"matched"`
	Normalized string            `json:"normalized"`
	Detail     *identity.Detail  `json:"detail,omitempty"`
	Groups     map[string]string `json:"groups,omitempty"`
}

// Summary 命中总览
func (s *PatternService) Summary() PatternSummary {
	snap := s.store.Current()
	ps := snap.Patterns()
	return PatternSummary{
		RunID:          snap.RunID(),
		TotalFiles:     ps.TotalFiles,
		MatchedFiles:   ps.MatchedFiles,
		UnmatchedFiles: ps.UnmatchedFiles,
		MatchRate:      ps.MatchRate,
		TotalRules:     s.ruleCount(),
	}
}

// ListRules 全部规则按命中次数降序（同次数保持规则表顺序）分页返回
func (s *PatternService) ListRules(limit, offset int) RuleList {
	hits := s.store.Current().Patterns().RuleHits
	rules := []RuleInfo{}
	for _, l := range s.extractor.Table().Layers {
		for _, r := range l.Rules {
			rules = append(rules, RuleInfo{
				ID:         r.ID,
				Layer:      l.Name,
				Pattern:    r.Pattern,
				Priority:   r.Priority,
				MatchCount: hits[r.ID],
			})
		}
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].MatchCount > rules[j].MatchCount })

	lo, hi := pageBounds(len(rules), limit, offset)
	return RuleList{Total: len(rules), Rules: rules[lo:hi]}
}

// Unmatched 未命中文件分页返回
func (s *PatternService) Unmatched(limit, offset int) UnmatchedList {
	snap := s.store.Current()
	all := snap.UnmatchedFiles()
	res := UnmatchedList{
		Total: len(all),
		Categories: map[string]int{
			UnmatchedDashVariant:  0,
			UnmatchedSpecialChars: 0,
			UnmatchedNonStandard:  0,
		},
		Files: []UnmatchedFile{},
	}
	if total := snap.Patterns().TotalFiles; total > 0 {
		res.Percentage = math.Round(float64(len(all))/float64(total)*1000) / 10
	}
	for _, e := range all {
		res.Categories[suggestCategory(e.FileName)]++
	}
	lo, hi := pageBounds(len(all), limit, offset)
	for _, e := range all[lo:hi] {
		res.Files = append(res.Files, UnmatchedFile{
			EntryID:           e.EntryID,
			FileName:          e.FileName,
			Path:              e.NaturalKey,
			Reason:            "no_pattern_match",
			SuggestedCategory: suggestCategory(e.FileName),
		})
	}
	return res
}

// MatchFile 对文件名做一次抽取并标注它是否在当前快照里
func (s *PatternService) MatchFile(fileName string) FileMatch {
	fileName = strings.TrimSpace(fileName)
	d := s.extractor.ExtractDetail(fileName)
	res := FileMatch{FileName: fileName, Matched: d.Matched(), Detail: d}
	if e, err := s.store.Current().FileEntry(fileName); err == nil {
		res.InCatalog = true
		res.EntryID = e.EntryID
	}
	return res
}

// Test 试匹配；自定义正则作用于规范化后的文本，命名分组按名字返回，其余按序号
func (s *PatternService) Test(req PatternTestRequest) (*PatternTestResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidPattern)
	}
	norm := identity.NormalizeText(req.Text)
	if req.Pattern == "" {
		d := s.extractor.ExtractDetail(req.Text)
		return &PatternTestResult{Matched: d.Matched(), Normalized: norm, Detail: &d}, nil
	}

	re, err := regexp.Compile(req.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	res := &PatternTestResult{Normalized: norm}
	m := re.FindStringSubmatch(norm)
	if m == nil {
		return res, nil
	}
	res.Matched = true
	res.Groups = make(map[string]string, len(m))
	names := re.SubexpNames()
	for i := 1; i < len(m); i++ {
		key := names[i]
		if key == "" {
			key = strconv.Itoa(i)
		}
		res.Groups[key] = m[i]
	}
	return res, nil
}

func (s *PatternService) ruleCount() int {
	n := 0
	for _, l := range s.extractor.Table().Layers {
		n += len(l.Rules)
	}
	return n
}

// suggestCategory 未命中文件的粗分类
func suggestCategory(name string) string {
	switch {
	case strings.ContainsAny(name, "–—‒―"):
		return UnmatchedDashVariant
	case strings.ContainsAny(name, "€™®©#&@"):
		return UnmatchedSpecialChars
	default:
		return UnmatchedNonStandard
	}
}

// pageBounds 把 limit/offset 截到 [0, n] 区间；limit<=0 表示不限
func pageBounds(n, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}
