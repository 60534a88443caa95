package store

import (
	"errors"
	"sort"
	"strings"
	"time"

	"CatalogSync/internal/matching"
	"CatalogSync/internal/model"
	"CatalogSync/internal/normalize"
	"CatalogSync/internal/segment"
)

// ErrNotFound 快照中不存在该条目/文件
var ErrNotFound = errors.New("not found")

// Input 构建快照所需的一次对账产物
type Input struct {
	RunID        string
	BuiltAt      time.Time
	Entries      []*model.CatalogEntry
	Verdicts     []*model.MatchVerdict
	Segments     map[string][]model.Segment // 键为文件条目 entry_id，已排序
	Rollups      map[string]model.CoverageRollup
	Orphans      []model.SegmentRecord
	SourceStats  map[model.Provenance]normalize.Stats
	SegmentStats segment.Stats
}

// Snapshot 一次对账发布的不可变视图；构建完成后只读，可被任意多个 goroutine 并发查询
type Snapshot struct {
	runID   string
	builtAt time.Time

	entries  []*model.CatalogEntry // entry_id 升序
	verdicts []*model.MatchVerdict // 匹配器输出顺序
	segments map[string][]model.Segment
	rollups  map[string]model.CoverageRollup
	orphans  []model.SegmentRecord

	byID       map[string]int
	byKey      map[string]int // provenance|natural_key
	buckets    map[bucketKey][]int
	byFileName map[string][]int // 小写文件名 -> 文件条目
	best       map[string]*model.MatchVerdict
	byEntry    map[string][]*model.MatchVerdict
	search     *searchIndex

	stats          Stats
	patterns       PatternStats
	unmatchedFiles []*model.CatalogEntry
}

type bucketKey struct {
	provenance model.Provenance
	year       int
	region     model.Region
}

// Build 构建快照并建立全部索引
func Build(in Input) *Snapshot {
	entries := make([]*model.CatalogEntry, 0, len(in.Entries))
	for _, e := range in.Entries {
		if e != nil {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].EntryID < entries[j].EntryID })

	s := &Snapshot{
		runID:      in.RunID,
		builtAt:    in.BuiltAt,
		entries:    entries,
		verdicts:   in.Verdicts,
		segments:   in.Segments,
		rollups:    in.Rollups,
		orphans:    in.Orphans,
		byID:       make(map[string]int, len(entries)),
		byKey:      make(map[string]int, len(entries)),
		buckets:    make(map[bucketKey][]int),
		byFileName: make(map[string][]int),
		best:       matching.BestByEntry(in.Verdicts),
		byEntry:    make(map[string][]*model.MatchVerdict, len(entries)),
	}
	if s.segments == nil {
		s.segments = map[string][]model.Segment{}
	}
	if s.rollups == nil {
		s.rollups = map[string]model.CoverageRollup{}
	}

	docs := make([]string, len(entries))
	for i, e := range entries {
		s.byID[e.EntryID] = i
		s.byKey[naturalKey(e.Provenance, e.NaturalKey)] = i
		bk := bucketKey{e.Provenance, e.Identity.Year, e.Identity.Region}
		s.buckets[bk] = append(s.buckets[bk], i)
		if e.FileName != "" {
			name := strings.ToLower(e.FileName)
			s.byFileName[name] = append(s.byFileName[name], i)
		}
		docs[i] = strings.ToLower(e.DisplayName) + "\n" + strings.ToLower(e.FileName)
	}
	s.search = newSearchIndex(docs)

	for _, v := range in.Verdicts {
		for _, id := range []string{v.LeftEntryID, v.RightEntryID} {
			if id != "" {
				s.byEntry[id] = append(s.byEntry[id], v)
			}
		}
	}

	s.stats = s.computeStats(in)
	s.patterns, s.unmatchedFiles = computePatterns(entries)
	return s
}

// Empty 首次发布前使用的空快照
func Empty() *Snapshot {
	return Build(Input{})
}

func naturalKey(p model.Provenance, key string) string { return string(p) + "|" + key }

// RunID 生成该快照的对账批次 ID
func (s *Snapshot) RunID() string { return s.runID }

// BuiltAt 快照构建时间
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Entries 全部条目（entry_id 升序）；调用方不得修改
func (s *Snapshot) Entries() []*model.CatalogEntry { return s.entries }

// Verdicts 全部结论；调用方不得修改
func (s *Snapshot) Verdicts() []*model.MatchVerdict { return s.verdicts }

// Orphans 未能挂载到任何文件的片段记录
func (s *Snapshot) Orphans() []model.SegmentRecord { return s.orphans }

// Entry 按 entry_id 查询
func (s *Snapshot) Entry(id string) (*model.CatalogEntry, error) {
	i, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.entries[i], nil
}

// EntryByNaturalKey 按 (provenance, natural_key) 查询
func (s *Snapshot) EntryByNaturalKey(p model.Provenance, key string) (*model.CatalogEntry, error) {
	i, ok := s.byKey[naturalKey(p, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.entries[i], nil
}

// Bucket 按 (provenance, year, region) 取条目，entry_id 升序
func (s *Snapshot) Bucket(p model.Provenance, year int, region model.Region) []*model.CatalogEntry {
	idx := s.buckets[bucketKey{p, year, region}]
	out := make([]*model.CatalogEntry, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.entries[i])
	}
	return out
}

// VerdictsFor 条目参与的全部结论
func (s *Snapshot) VerdictsFor(entryID string) []*model.MatchVerdict {
	return s.byEntry[entryID]
}

// Best 条目的最强结论
func (s *Snapshot) Best(entryID string) *model.MatchVerdict {
	return s.best[entryID]
}

// MatrixFilter 矩阵查询条件，空值表示不过滤
type MatrixFilter struct {
	Status     model.MatchStatus
	Search     string
	Provenance model.Provenance
}

// MatrixRow 矩阵投影行：一个条目及其最强结论、对侧条目和片段覆盖
type MatrixRow struct {
	EntryID         string                   `json:"entry_id"`
	Provenance      model.Provenance         `json:"provenance"`
	DisplayName     string                   `json:"display_name"`
	NaturalKey      string                   `json:"natural_key"`
	FileName        string                   `json:"file_name,omitempty"`
	Identity        model.TournamentIdentity `json:"identity"`
	Status          model.MatchStatus        `json:"status"`
	Confidence      model.Confidence         `json:"confidence"`
	RuleID          string                   `json:"rule_id"`
	CounterpartID   string                   `json:"counterpart_id,omitempty"`
	CounterpartName string                   `json:"counterpart_name,omitempty"`
	CounterpartProv model.Provenance         `json:"counterpart_provenance,omitempty"`
	Evidence        []model.Evidence         `json:"evidence"`
	Coverage        *model.CoverageRollup    `json:"coverage,omitempty"`
}

// ListMatrix 按条件返回投影行；按 provenance、展示名（不区分大小写）、entry_id 排序
func (s *Snapshot) ListMatrix(f MatrixFilter) []MatrixRow {
	var idx []int
	if strings.TrimSpace(f.Search) != "" {
		idx = s.search.Search(f.Search)
	} else {
		idx = make([]int, len(s.entries))
		for i := range s.entries {
			idx[i] = i
		}
	}

	rows := make([]MatrixRow, 0, len(idx))
	for _, i := range idx {
		e := s.entries[i]
		if f.Provenance != "" && e.Provenance != f.Provenance {
			continue
		}
		row := s.row(e)
		if f.Status != "" && row.Status != f.Status {
			continue
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Provenance != rows[j].Provenance {
			return rows[i].Provenance < rows[j].Provenance
		}
		ni, nj := strings.ToLower(rows[i].DisplayName), strings.ToLower(rows[j].DisplayName)
		if ni != nj {
			return ni < nj
		}
		return rows[i].EntryID < rows[j].EntryID
	})
	return rows
}

func (s *Snapshot) row(e *model.CatalogEntry) MatrixRow {
	row := MatrixRow{
		EntryID:     e.EntryID,
		Provenance:  e.Provenance,
		DisplayName: e.DisplayName,
		NaturalKey:  e.NaturalKey,
		FileName:    e.FileName,
		Identity:    e.Identity,
		Evidence:    []model.Evidence{},
	}
	if v := s.best[e.EntryID]; v != nil {
		row.Status = v.Status
		row.Confidence = v.Confidence
		row.RuleID = v.RuleID
		row.Evidence = v.Evidence
		if cp := v.Counterpart(e.EntryID); cp != "" {
			row.CounterpartID = cp
			if c, err := s.Entry(cp); err == nil {
				row.CounterpartName = c.DisplayName
				row.CounterpartProv = c.Provenance
			}
		}
	}
	if r, ok := s.rollups[e.EntryID]; ok {
		row.Coverage = &r
	}
	return row
}

// FileSegments 文件的有序片段与覆盖汇总
type FileSegments struct {
	Entry    *model.CatalogEntry  `json:"entry"`
	Segments []model.Segment      `json:"segments"`
	Rollup   model.CoverageRollup `json:"rollup"`
}

// FileSegments 按文件名（不区分大小写）查询；同名文件取 entry_id 最小者
func (s *Snapshot) FileSegments(fileName string) (*FileSegments, error) {
	e, err := s.FileEntry(fileName)
	if err != nil {
		return nil, err
	}
	segs := s.segments[e.EntryID]
	if segs == nil {
		segs = []model.Segment{}
	}
	return &FileSegments{
		Entry:    e,
		Segments: segs,
		Rollup:   s.rollups[e.EntryID],
	}, nil
}

// Content 快照内容（不含批次 ID 与构建时间），相同输入得到字节相等的序列化结果
type Content struct {
	Entries  []*model.CatalogEntry           `json:"entries"`
	Verdicts []*model.MatchVerdict           `json:"verdicts"`
	Segments map[string][]model.Segment      `json:"segments"`
	Rollups  map[string]model.CoverageRollup `json:"rollups"`
	Orphans  []model.SegmentRecord           `json:"orphans"`
	Stats    Stats                           `json:"stats"`
}

// Content 导出快照内容，用于审计落盘与一致性比对
func (s *Snapshot) Content() Content {
	st := s.stats
	st.Snapshot = SnapshotMeta{}
	return Content{
		Entries:  s.entries,
		Verdicts: s.verdicts,
		Segments: s.segments,
		Rollups:  s.rollups,
		Orphans:  s.orphans,
		Stats:    st,
	}
}
