package normalize

import (
	"bytes"
	"path"
	"sort"
	"strings"

	"CatalogSync/internal/identity"
	"CatalogSync/internal/model"

	"github.com/sirupsen/logrus"
)

// hiddenPrefix macOS 资源分叉影子文件前缀
const hiddenPrefix = "._"

// Stats 单个来源的规范化统计（可恢复错误只计数，不中断）
type Stats struct {
	Input      int `json:"input"`
	Emitted    int `json:"emitted"`
	Malformed  int `json:"malformed_records"`   // 缺少自然键
	Hidden     int `json:"hidden_records"`      // ._ 影子文件
	Duplicates int `json:"duplicate_records"`   // 同 entry_id 被覆盖
	Unresolved int `json:"identity_unresolved"` // 身份全部未知
}

// Add 累加另一来源的统计
func (s *Stats) Add(o Stats) {
	s.Input += o.Input
	s.Emitted += o.Emitted
	s.Malformed += o.Malformed
	s.Hidden += o.Hidden
	s.Duplicates += o.Duplicates
	s.Unresolved += o.Unresolved
}

// Result 规范化结果，Entries 按 entry_id 升序
type Result struct {
	Provenance model.Provenance
	Entries    []*model.CatalogEntry
	Stats      Stats
}

// Normalizer 把各来源原始记录转为 CatalogEntry 并挂上身份
type Normalizer struct {
	extractor *identity.Extractor
	logger    *logrus.Logger
}

func NewNormalizer(extractor *identity.Extractor, logger *logrus.Logger) *Normalizer {
	return &Normalizer{extractor: extractor, logger: logger}
}

// Normalize 单来源规范化：丢弃无自然键/影子记录，解析展示名与身份，按 entry_id 去重并排序
func (n *Normalizer) Normalize(p model.Provenance, raws []*model.RawRecord) Result {
	res := Result{Provenance: p}
	res.Stats.Input = len(raws)

	byID := make(map[string]*model.CatalogEntry, len(raws))
	for _, r := range raws {
		if r == nil {
			res.Stats.Malformed++
			continue
		}
		key := strings.TrimSpace(r.NaturalKey)
		if key == "" {
			res.Stats.Malformed++
			continue
		}
		if isHidden(key, r.FileName) {
			res.Stats.Hidden++
			continue
		}

		detail := n.extractor.ExtractDetail(identityText(r))
		entry := &model.CatalogEntry{
			EntryID:      model.BuildEntryID(p, key),
			Provenance:   p,
			NaturalKey:   key,
			DisplayName:  displayName(r),
			FileName:     strings.TrimSpace(r.FileName),
			Identity:     detail.Identity,
			MatchedRules: detail.RuleIDs(),
			SizeBytes:    r.SizeBytes,
			ModifiedAt:   r.ModifiedAt,
			Raw:          r.Raw,
		}
		if prev, ok := byID[entry.EntryID]; ok {
			res.Stats.Duplicates++
			if !preferNew(prev, entry) {
				continue
			}
		}
		byID[entry.EntryID] = entry
	}

	res.Entries = make([]*model.CatalogEntry, 0, len(byID))
	for _, e := range byID {
		if e.Identity.IsUnresolved() {
			res.Stats.Unresolved++
		}
		res.Entries = append(res.Entries, e)
	}
	SortEntries(res.Entries)
	res.Stats.Emitted = len(res.Entries)

	if res.Stats.Malformed > 0 || res.Stats.Hidden > 0 {
		n.logger.WithFields(logrus.Fields{
			"provenance": p,
			"malformed":  res.Stats.Malformed,
			"hidden":     res.Stats.Hidden,
		}).Warn("规范化丢弃了部分记录")
	}
	n.logger.WithFields(logrus.Fields{
		"provenance": p,
		"input":      res.Stats.Input,
		"emitted":    res.Stats.Emitted,
		"unresolved": res.Stats.Unresolved,
	}).Debug("规范化完成")
	return res
}

// SortEntries 按 entry_id 升序（匹配器的稳定顺序基础）
func SortEntries(entries []*model.CatalogEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].EntryID < entries[j].EntryID })
}

func isHidden(key, fileName string) bool {
	return strings.HasPrefix(key, hiddenPrefix) ||
		strings.HasPrefix(path.Base(strings.ReplaceAll(key, `\`, "/")), hiddenPrefix) ||
		strings.HasPrefix(strings.TrimSpace(fileName), hiddenPrefix)
}

// preferNew 同 entry_id 冲突：modified_at 新者胜；相同时按 natural_key、展示名、原始字段的字典序取小者
func preferNew(prev, next *model.CatalogEntry) bool {
	switch {
	case prev.ModifiedAt == nil && next.ModifiedAt != nil:
		return true
	case prev.ModifiedAt != nil && next.ModifiedAt == nil:
		return false
	case prev.ModifiedAt != nil && next.ModifiedAt != nil && !prev.ModifiedAt.Equal(*next.ModifiedAt):
		return next.ModifiedAt.After(*prev.ModifiedAt)
	}
	if prev.NaturalKey != next.NaturalKey {
		return next.NaturalKey < prev.NaturalKey
	}
	if prev.DisplayName != next.DisplayName {
		return next.DisplayName < prev.DisplayName
	}
	return bytes.Compare(next.Raw, prev.Raw) < 0
}

// displayName 标题 > 人性化 slug > 文件名
func displayName(r *model.RawRecord) string {
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	if s := strings.TrimSpace(r.Slug); s != "" {
		return Humanize(s)
	}
	if f := strings.TrimSpace(r.FileName); f != "" {
		return f
	}
	return r.NaturalKey
}

// identityText 身份抽取输入：标题 + slug（无 slug 时用文件名）
func identityText(r *model.RawRecord) string {
	second := strings.TrimSpace(r.Slug)
	if second == "" {
		second = strings.TrimSpace(r.FileName)
	}
	return strings.TrimSpace(strings.TrimSpace(r.Title) + " " + second)
}
