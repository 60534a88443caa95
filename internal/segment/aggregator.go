package segment

import (
	"path"
	"sort"
	"strings"

	"CatalogSync/internal/model"
)

// Sort 按 in 帧号、out 帧号稳定排序，相同键保持插入顺序
func Sort(segments []model.Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].InFrames != segments[j].InFrames {
			return segments[i].InFrames < segments[j].InFrames
		}
		return segments[i].OutFrames < segments[j].OutFrames
	})
}

// Rollup 单文件覆盖汇总；segments 需已排序。重叠只做标记，不合并
func Rollup(segments []model.Segment) model.CoverageRollup {
	r := model.CoverageRollup{SegmentCount: len(segments)}
	var maxOut int64
	for i, s := range segments {
		if s.UDMStatus == model.UDMConverted {
			r.ConvertedSegments++
		}
		if i > 0 && s.InFrames < maxOut {
			r.Overlap = true
		}
		if s.OutFrames > maxOut {
			maxOut = s.OutFrames
		}
	}
	if r.SegmentCount > 0 {
		r.ConversionRate = float64(r.ConvertedSegments) / float64(r.SegmentCount)
	}
	return r
}

// Stats 片段挂载统计
type Stats struct {
	Total     int `json:"total"`
	Attached  int `json:"attached"`
	Orphans   int `json:"orphan_segments"`
	Malformed int `json:"malformed_segments"`
	Ambiguous int `json:"ambiguous_segments"` // 多个文件同名，按 entry_id 最小者挂载
}

// Result 挂载结果，键为文件条目 entry_id
type Result struct {
	Segments map[string][]model.Segment
	Rollups  map[string]model.CoverageRollup
	Orphans  []model.SegmentRecord
	Stats    Stats
}

// Attach 按 file_name 把片段表挂到文件条目上（不区分大小写；忽略扩展名差异作为兜底）。
// 找不到文件的记录为孤儿片段；时间码非法或 out < in 的记录丢弃并计数。
func Attach(records []model.SegmentRecord, files []*model.CatalogEntry) Result {
	res := Result{
		Segments: make(map[string][]model.Segment),
		Rollups:  make(map[string]model.CoverageRollup),
	}
	byName, byStem := indexFiles(files)

	for i, rec := range records {
		res.Stats.Total++
		name := strings.ToLower(strings.TrimSpace(rec.FileName))
		if name == "" {
			res.Stats.Malformed++
			continue
		}
		in, errIn := ParseTimecode(rec.InTC)
		out, errOut := ParseTimecode(rec.OutTC)
		if errIn != nil || errOut != nil || out < in {
			res.Stats.Malformed++
			continue
		}

		candidates := byName[name]
		if len(candidates) == 0 {
			candidates = byStem[stem(name)]
		}
		if len(candidates) == 0 {
			res.Stats.Orphans++
			res.Orphans = append(res.Orphans, rec)
			continue
		}
		if len(candidates) > 1 {
			res.Stats.Ambiguous++
		}
		owner := candidates[0]

		seg := model.Segment{
			FileEntryID: owner.EntryID,
			FileName:    owner.FileName,
			RowNumber:   i + 1,
			InTC:        strings.TrimSpace(rec.InTC),
			OutTC:       strings.TrimSpace(rec.OutTC),
			InFrames:    in,
			OutFrames:   out,
			InSec:       FramesToSeconds(in),
			OutSec:      FramesToSeconds(out),
			Winner:      strings.TrimSpace(rec.Winner),
			UDMStatus:   normalizeStatus(rec.UDMStatus),
		}
		if rec.Rating != nil {
			rating := rec.Rating.Int()
			seg.Rating = &rating
		}
		res.Segments[owner.EntryID] = append(res.Segments[owner.EntryID], seg)
		res.Stats.Attached++
	}

	for id, segs := range res.Segments {
		Sort(segs)
		res.Rollups[id] = Rollup(segs)
	}
	return res
}

// indexFiles 文件名索引，同名时按 entry_id 升序
func indexFiles(files []*model.CatalogEntry) (map[string][]*model.CatalogEntry, map[string][]*model.CatalogEntry) {
	sorted := make([]*model.CatalogEntry, 0, len(files))
	for _, f := range files {
		if f != nil && f.FileName != "" {
			sorted = append(sorted, f)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EntryID < sorted[j].EntryID })

	byName := make(map[string][]*model.CatalogEntry, len(sorted))
	byStem := make(map[string][]*model.CatalogEntry, len(sorted))
	for _, f := range sorted {
		name := strings.ToLower(f.FileName)
		byName[name] = append(byName[name], f)
		byStem[stem(name)] = append(byStem[stem(name)], f)
	}
	return byName, byStem
}

func stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

func normalizeStatus(s string) model.UDMStatus {
	switch model.UDMStatus(strings.ToLower(strings.TrimSpace(s))) {
	case model.UDMConverted:
		return model.UDMConverted
	case model.UDMFailed:
		return model.UDMFailed
	default:
		return model.UDMPending
	}
}
