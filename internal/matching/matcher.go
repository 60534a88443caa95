package matching

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"CatalogSync/internal/model"

	"github.com/sirupsen/logrus"
)

// ErrInvariantViolated 某条目出现在多于一个 complete/partial 结论中，整次对账作废
var ErrInvariantViolated = errors.New("matcher invariant violated")

// Matcher 分层规则匹配器：左侧为文件系统目录，右侧为流媒体 + 外部目录。
// 纯函数：同样的输入与偏移表得到同样的结论序列。
type Matcher struct {
	offsets map[int]int
	logger  *logrus.Logger
}

// NewMatcher offsets 为 年份 -> (节目号 - 流媒体集数) 偏移，缺省年份按 0
func NewMatcher(offsets map[int]int, logger *logrus.Logger) *Matcher {
	cp := make(map[int]int, len(offsets))
	for k, v := range offsets {
		cp[k] = v
	}
	return &Matcher{offsets: cp, logger: logger}
}

// Offset 某年份的节目号偏移
func (m *Matcher) Offset(year int) int { return m.offsets[year] }

// pool 尚未配对的条目（均按 entry_id 升序）
type pool struct {
	left  []*model.CatalogEntry
	right []*model.CatalogEntry
	used  map[string]bool
}

func (p *pool) remaining(side []*model.CatalogEntry) []*model.CatalogEntry {
	out := make([]*model.CatalogEntry, 0, len(side))
	for _, e := range side {
		if !p.used[e.EntryID] {
			out = append(out, e)
		}
	}
	return out
}

type pair struct {
	left, right *model.CatalogEntry
}

// layer 一层匹配规则
type layer struct {
	num        int
	ruleID     string
	confidence model.Confidence
	pairs      func(m *Matcher, left, right []*model.CatalogEntry) []pair
	verdict    func(m *Matcher, p pair) (model.MatchStatus, []model.Evidence)
}

var layers = []layer{
	{1, model.RuleShowNumberBridge, model.ConfidenceExact, (*Matcher).bridgePairs, (*Matcher).bridgeVerdict},
	{2, model.RuleYearRegionEpisode, model.ConfidenceExact, episodePairs, episodeVerdict},
	{3, model.RuleYearRegionDay, model.ConfidenceStrong, dayPairs, dayVerdict},
	{4, model.RuleYearRegionEvent, model.ConfidenceStrong, eventTypePairs, eventTypeVerdict},
	{5, model.RuleYearRegion, model.ConfidenceWeak, yearRegionPairs, yearRegionVerdict},
}

// Match 逐层配对；已配对条目退出后续层。返回顺序：配对结论按层、左侧 entry_id；
// 然后 left_only、right_only 各按 entry_id。
func (m *Matcher) Match(left, right []*model.CatalogEntry) ([]*model.MatchVerdict, error) {
	l, err := sortedUnique(left)
	if err != nil {
		return nil, err
	}
	r, err := sortedUnique(right)
	if err != nil {
		return nil, err
	}
	p := &pool{left: l, right: r, used: make(map[string]bool, len(l)+len(r))}

	var verdicts []*model.MatchVerdict
	for _, ly := range layers {
		pairs := ly.pairs(m, p.remaining(p.left), p.remaining(p.right))
		sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].left.EntryID < pairs[j].left.EntryID })
		for _, pr := range pairs {
			status, evidence := ly.verdict(m, pr)
			p.used[pr.left.EntryID] = true
			p.used[pr.right.EntryID] = true
			verdicts = append(verdicts, &model.MatchVerdict{
				LeftEntryID:  pr.left.EntryID,
				RightEntryID: pr.right.EntryID,
				Status:       status,
				Confidence:   ly.confidence,
				RuleID:       ly.ruleID,
				Layer:        ly.num,
				Evidence:     evidence,
			})
		}
		if m.logger != nil {
			m.logger.WithFields(logrus.Fields{"layer": ly.num, "rule": ly.ruleID, "pairs": len(pairs)}).Debug("匹配层完成")
		}
	}

	for _, e := range p.remaining(p.left) {
		verdicts = append(verdicts, unpaired(e, model.StatusLeftOnly))
	}
	for _, e := range p.remaining(p.right) {
		verdicts = append(verdicts, unpaired(e, model.StatusRightOnly))
	}

	if err := assertSinglePairing(verdicts); err != nil {
		return nil, err
	}
	return verdicts, nil
}

func unpaired(e *model.CatalogEntry, status model.MatchStatus) *model.MatchVerdict {
	v := &model.MatchVerdict{
		Status:     status,
		Confidence: model.ConfidenceNone,
		RuleID:     model.RuleUnpaired,
		Evidence:   identityEvidence(e, status),
	}
	if status == model.StatusLeftOnly {
		v.LeftEntryID = e.EntryID
	} else {
		v.RightEntryID = e.EntryID
	}
	return v
}

// identityEvidence 未配对条目记录其身份的关键字段，方便人工判断为何落单
func identityEvidence(e *model.CatalogEntry, status model.MatchStatus) []model.Evidence {
	id := e.Identity
	fields := []struct{ name, value string }{
		{"brand", string(id.Brand)},
		{"year", intOrEmpty(id.Year)},
		{"region", string(id.Region)},
		{"event_type", string(id.EventType)},
		{"episode", intOrEmpty(id.Episode)},
		{"day", id.Day},
		{"part", intOrEmpty(id.Part)},
		{"show_number", intOrEmpty(id.ShowNumber)},
	}
	out := make([]model.Evidence, 0, len(fields))
	for _, f := range fields {
		ev := model.Evidence{Field: f.name}
		if status == model.StatusLeftOnly {
			ev.Left = f.value
		} else {
			ev.Right = f.value
		}
		out = append(out, ev)
	}
	return out
}

func sortedUnique(entries []*model.CatalogEntry) ([]*model.CatalogEntry, error) {
	out := make([]*model.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	for i := 1; i < len(out); i++ {
		if out[i].EntryID == out[i-1].EntryID {
			return nil, fmt.Errorf("%w: duplicate entry_id %s", ErrInvariantViolated, out[i].EntryID)
		}
	}
	return out, nil
}

// assertSinglePairing 每个条目至多出现在一个 complete/partial 结论中
func assertSinglePairing(verdicts []*model.MatchVerdict) error {
	seen := make(map[string]int, len(verdicts)*2)
	for i, v := range verdicts {
		if !v.Status.Paired() {
			continue
		}
		for _, id := range []string{v.LeftEntryID, v.RightEntryID} {
			if prev, ok := seen[id]; ok {
				return fmt.Errorf("%w: entry %s paired by verdicts %d and %d", ErrInvariantViolated, id, prev, i)
			}
			seen[id] = i
		}
	}
	return nil
}

// BestByEntry 按条目汇总最强结论（状态 > 置信度 > 层级），同强度取先出现者
func BestByEntry(verdicts []*model.MatchVerdict) map[string]*model.MatchVerdict {
	best := make(map[string]*model.MatchVerdict, len(verdicts))
	for _, v := range verdicts {
		for _, id := range []string{v.LeftEntryID, v.RightEntryID} {
			if id == "" {
				continue
			}
			if cur, ok := best[id]; !ok || v.Rank() > cur.Rank() {
				best[id] = v
			}
		}
	}
	return best
}

func intOrEmpty(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
