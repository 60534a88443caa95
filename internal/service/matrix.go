package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"CatalogSync/internal/model"
	"CatalogSync/internal/repository"
	"CatalogSync/internal/store"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidFilter 查询参数非法
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrAuditDisabled 未配置数据库，审计历史不可用
	ErrAuditDisabled = errors.New("audit storage not configured")
)

// MatrixService 面向看板的只读查询服务，所有查询基于当前发布的快照
type MatrixService struct {
	store  *store.Store
	audit  repository.AuditRepository
	logger *logrus.Logger
}

// NewMatrixService audit 可为 nil
func NewMatrixService(st *store.Store, audit repository.AuditRepository, logger *logrus.Logger) *MatrixService {
	return &MatrixService{store: st, audit: audit, logger: logger}
}

// MatrixSummary 列表汇总
type MatrixSummary struct {
	TotalFiles     int `json:"total_files"`
	MatchedFiles   int `json:"matched_files"`
	UnmatchedFiles int `json:"unmatched_files"`
	TotalSegments  int `json:"total_segments"`
	OrphanSegments int `json:"orphan_segments"`
}

// MatrixResult 矩阵列表返回
type MatrixResult struct {
	RunID   string            `json:"run_id,omitempty"`
	Total   int               `json:"total"`
	Summary MatrixSummary     `json:"summary"`
	Items   []store.MatrixRow `json:"items"`
}

// ParseMatrixFilter 校验查询参数
func ParseMatrixFilter(status, search, provenance string) (store.MatrixFilter, error) {
	f := store.MatrixFilter{
		Status:     model.MatchStatus(strings.ToLower(strings.TrimSpace(status))),
		Search:     strings.TrimSpace(search),
		Provenance: model.Provenance(strings.ToLower(strings.TrimSpace(provenance))),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("%w: status %q", ErrInvalidFilter, status)
	}
	if f.Provenance != "" && !f.Provenance.Valid() {
		return f, fmt.Errorf("%w: provenance %q", ErrInvalidFilter, provenance)
	}
	return f, nil
}

// ListMatrix 按条件返回矩阵；同一次调用只读一个快照
func (s *MatrixService) ListMatrix(f store.MatrixFilter) *MatrixResult {
	snap := s.store.Current()
	st := snap.Stats()
	fs := st.Sources[model.ProvenanceFilesystem]
	items := snap.ListMatrix(f)
	return &MatrixResult{
		RunID: snap.RunID(),
		Total: len(items),
		Summary: MatrixSummary{
			TotalFiles:     fs.TotalEntries,
			MatchedFiles:   fs.TotalMatched,
			UnmatchedFiles: fs.TotalUnmatched,
			TotalSegments:  st.Coverage.TotalSegments,
			OrphanSegments: st.Errors.OrphanSegments,
		},
		Items: items,
	}
}

// Stats 当前快照统计
func (s *MatrixService) Stats() store.Stats {
	return s.store.Current().Stats()
}

// FileSegments 文件的片段明细
func (s *MatrixService) FileSegments(fileName string) (*store.FileSegments, error) {
	return s.store.Current().FileSegments(fileName)
}

// VerdictDetail 条目详情中的一条结论，附对侧条目
type VerdictDetail struct {
	*model.MatchVerdict
	Counterpart *model.CatalogEntry `json:"counterpart,omitempty"`
}

// EntryDetail 条目详情
type EntryDetail struct {
	Entry    *model.CatalogEntry   `json:"entry"`
	Verdicts []VerdictDetail       `json:"verdicts"`
	Segments *store.FileSegments   `json:"segments,omitempty"`
	Coverage *model.CoverageRollup `json:"coverage,omitempty"`
}

// EntryDetail 按 entry_id 返回条目及其全部结论
func (s *MatrixService) EntryDetail(id string) (*EntryDetail, error) {
	snap := s.store.Current()
	e, err := snap.Entry(id)
	if err != nil {
		return nil, err
	}
	d := &EntryDetail{Entry: e, Verdicts: []VerdictDetail{}}
	for _, v := range snap.VerdictsFor(id) {
		vd := VerdictDetail{MatchVerdict: v}
		if cp := v.Counterpart(id); cp != "" {
			vd.Counterpart, _ = snap.Entry(cp)
		}
		d.Verdicts = append(d.Verdicts, vd)
	}
	if e.FileName != "" {
		if fs, err := snap.FileSegments(e.FileName); err == nil && fs.Entry.EntryID == id && len(fs.Segments) > 0 {
			d.Segments = fs
			rollup := fs.Rollup
			d.Coverage = &rollup
		}
	}
	return d, nil
}

// RunListResult 审计历史分页
type RunListResult struct {
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
	Total    int64                 `json:"total"`
	Items    []*model.ReconcileRun `json:"items"`
}

// ListRuns 审计历史；未配置数据库时返回 ErrAuditDisabled
func (s *MatrixService) ListRuns(ctx context.Context, status string, page, pageSize int) (*RunListResult, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	list, total, err := s.audit.ListRuns(ctx, repository.RunFilter{Status: status}, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询对账历史失败: %w", err)
	}
	if list == nil {
		list = []*model.ReconcileRun{}
	}
	return &RunListResult{Page: page, PageSize: pageSize, Total: total, Items: list}, nil
}
