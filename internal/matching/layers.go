package matching

import (
	"sort"
	"strconv"
	"strings"

	"CatalogSync/internal/model"
)

// binned 按键分箱，保持输入（entry_id）顺序；返回的键已排序
func binned(entries []*model.CatalogEntry, key func(*model.CatalogEntry) (string, bool)) (map[string][]*model.CatalogEntry, []string) {
	bins := make(map[string][]*model.CatalogEntry)
	var keys []string
	for _, e := range entries {
		k, ok := key(e)
		if !ok {
			continue
		}
		if _, exists := bins[k]; !exists {
			keys = append(keys, k)
		}
		bins[k] = append(bins[k], e)
	}
	sort.Strings(keys)
	return bins, keys
}

// positional 同箱内按位置配对，多余的留在池中
func positional(left, right map[string][]*model.CatalogEntry, keys []string) []pair {
	var out []pair
	for _, k := range keys {
		r, ok := right[k]
		if !ok {
			continue
		}
		l := left[k]
		n := len(l)
		if len(r) < n {
			n = len(r)
		}
		for i := 0; i < n; i++ {
			out = append(out, pair{left: l[i], right: r[i]})
		}
	}
	return out
}

// uniqueOnly 仅在箱内两侧恰好各一条时配对
func uniqueOnly(left, right map[string][]*model.CatalogEntry, keys []string) []pair {
	var out []pair
	for _, k := range keys {
		l, r := left[k], right[k]
		if len(l) == 1 && len(r) == 1 {
			out = append(out, pair{left: l[0], right: r[0]})
		}
	}
	return out
}

// matchable 2-5 层要求年份与地区已知
func matchable(id model.TournamentIdentity) bool {
	return id.HasYear() && id.Region != model.RegionUnknown && id.Region != ""
}

// bucketKey (year, region, brand family)；other 地区包含多个巡回赛，需按品牌族区分
func bucketKey(id model.TournamentIdentity) string {
	return strconv.Itoa(id.Year) + "|" + string(id.Region) + "|" + id.BrandFamily()
}

func joinKey(parts ...string) string { return strings.Join(parts, "|") }

// ---------- 第 1 层：节目号桥接 ----------

func (m *Matcher) bridgeEpisode(id model.TournamentIdentity) (int, bool) {
	if id.Brand != model.BrandMain || id.ShowNumber <= 0 {
		return 0, false
	}
	ep := id.ShowNumber - m.Offset(id.Year)
	return ep, ep > 0
}

func (m *Matcher) bridgePairs(left, right []*model.CatalogEntry) []pair {
	lb, keys := binned(left, func(e *model.CatalogEntry) (string, bool) {
		ep, ok := m.bridgeEpisode(e.Identity)
		if !ok {
			return "", false
		}
		return joinKey(strconv.Itoa(e.Identity.Year), strconv.Itoa(ep)), true
	})
	rb, _ := binned(right, func(e *model.CatalogEntry) (string, bool) {
		id := e.Identity
		if id.Region != model.RegionMain || id.Episode <= 0 {
			return "", false
		}
		return joinKey(strconv.Itoa(id.Year), strconv.Itoa(id.Episode)), true
	})
	return positional(lb, rb, keys)
}

func (m *Matcher) bridgeVerdict(p pair) (model.MatchStatus, []model.Evidence) {
	l, r := p.left.Identity, p.right.Identity
	return model.StatusComplete, []model.Evidence{
		{Field: "brand", Left: string(l.Brand), Right: string(r.Brand)},
		{Field: "year", Left: intOrEmpty(l.Year), Right: intOrEmpty(r.Year)},
		{Field: "show_number", Left: intOrEmpty(l.ShowNumber), Right: ""},
		{Field: "offset", Left: strconv.Itoa(m.Offset(l.Year)), Right: ""},
		{Field: "episode", Left: intOrEmpty(l.ShowNumber - m.Offset(l.Year)), Right: intOrEmpty(r.Episode)},
	}
}

// ---------- 第 2 层：年份 + 地区 + 集数 ----------

func episodePairs(_ *Matcher, left, right []*model.CatalogEntry) []pair {
	key := func(e *model.CatalogEntry) (string, bool) {
		id := e.Identity
		if !matchable(id) || id.Episode <= 0 {
			return "", false
		}
		return joinKey(bucketKey(id), strconv.Itoa(id.Episode)), true
	}
	lb, keys := binned(left, key)
	rb, _ := binned(right, key)
	return positional(lb, rb, keys)
}

func episodeVerdict(_ *Matcher, p pair) (model.MatchStatus, []model.Evidence) {
	l, r := p.left.Identity, p.right.Identity
	ev := []model.Evidence{
		{Field: "year", Left: intOrEmpty(l.Year), Right: intOrEmpty(r.Year)},
		{Field: "region", Left: string(l.Region), Right: string(r.Region)},
		{Field: "brand_family", Left: l.BrandFamily(), Right: r.BrandFamily()},
		{Field: "episode", Left: intOrEmpty(l.Episode), Right: intOrEmpty(r.Episode)},
	}
	return secondary(ev, l, r, "day", "part")
}

// ---------- 第 3 层：年份 + 地区 + 比赛日 ----------

func dayPairs(_ *Matcher, left, right []*model.CatalogEntry) []pair {
	key := func(e *model.CatalogEntry) (string, bool) {
		id := e.Identity
		if !matchable(id) || id.Day == "" {
			return "", false
		}
		return joinKey(bucketKey(id), strings.ToUpper(id.Day)), true
	}
	lb, keys := binned(left, key)
	rb, _ := binned(right, key)

	var out []pair
	for _, k := range keys {
		r, ok := rb[k]
		if !ok {
			continue
		}
		out = append(out, pairDayBin(lb[k], r)...)
	}
	return out
}

// pairDayBin 先按相同 part（含两侧都无 part）位置配对，
// 剩余的再与缺少 part 的一侧按顺序配对；两侧都有 part 时必须相等
func pairDayBin(left, right []*model.CatalogEntry) []pair {
	partKey := func(e *model.CatalogEntry) (string, bool) { return strconv.Itoa(e.Identity.Part), true }
	lb, keys := binned(left, partKey)
	rb, _ := binned(right, partKey)
	out := positional(lb, rb, keys)

	taken := make(map[string]bool, len(out)*2)
	for _, p := range out {
		taken[p.left.EntryID] = true
		taken[p.right.EntryID] = true
	}
	for _, l := range left {
		if taken[l.EntryID] {
			continue
		}
		for _, r := range right {
			if taken[r.EntryID] {
				continue
			}
			if l.Identity.Part > 0 && r.Identity.Part > 0 {
				continue
			}
			out = append(out, pair{left: l, right: r})
			taken[l.EntryID] = true
			taken[r.EntryID] = true
			break
		}
	}
	return out
}

func dayVerdict(_ *Matcher, p pair) (model.MatchStatus, []model.Evidence) {
	l, r := p.left.Identity, p.right.Identity
	ev := []model.Evidence{
		{Field: "year", Left: intOrEmpty(l.Year), Right: intOrEmpty(r.Year)},
		{Field: "region", Left: string(l.Region), Right: string(r.Region)},
		{Field: "day", Left: l.Day, Right: r.Day},
	}
	return secondary(ev, l, r, "episode", "part")
}

// ---------- 第 4 层：年份 + 地区 + 赛事类型（箱内唯一） ----------

func eventTypePairs(_ *Matcher, left, right []*model.CatalogEntry) []pair {
	key := func(e *model.CatalogEntry) (string, bool) {
		id := e.Identity
		if !matchable(id) || id.EventType == model.EventUnknown || id.EventType == "" {
			return "", false
		}
		return joinKey(bucketKey(id), string(id.EventType)), true
	}
	lb, keys := binned(left, key)
	rb, _ := binned(right, key)
	return uniqueOnly(lb, rb, keys)
}

func eventTypeVerdict(_ *Matcher, p pair) (model.MatchStatus, []model.Evidence) {
	l, r := p.left.Identity, p.right.Identity
	ev := []model.Evidence{
		{Field: "year", Left: intOrEmpty(l.Year), Right: intOrEmpty(r.Year)},
		{Field: "region", Left: string(l.Region), Right: string(r.Region)},
		{Field: "event_type", Left: string(l.EventType), Right: string(r.EventType)},
	}
	return secondary(ev, l, r, "episode", "day", "part")
}

// ---------- 第 5 层：年份 + 地区（箱内唯一） ----------

func yearRegionPairs(_ *Matcher, left, right []*model.CatalogEntry) []pair {
	key := func(e *model.CatalogEntry) (string, bool) {
		if !matchable(e.Identity) {
			return "", false
		}
		return bucketKey(e.Identity), true
	}
	lb, keys := binned(left, key)
	rb, _ := binned(right, key)
	return uniqueOnly(lb, rb, keys)
}

func yearRegionVerdict(_ *Matcher, p pair) (model.MatchStatus, []model.Evidence) {
	l, r := p.left.Identity, p.right.Identity
	ev := []model.Evidence{
		{Field: "year", Left: intOrEmpty(l.Year), Right: intOrEmpty(r.Year)},
		{Field: "region", Left: string(l.Region), Right: string(r.Region)},
	}
	_, ev = secondary(ev, l, r, "event_type", "episode", "day", "part")
	return model.StatusPartial, ev
}

// secondary 检查该层期望的次要字段；任一字段两侧不一致（含一侧缺失）即为 partial，
// 不一致的字段追加到证据末尾
func secondary(ev []model.Evidence, l, r model.TournamentIdentity, fields ...string) (model.MatchStatus, []model.Evidence) {
	status := model.StatusComplete
	for _, f := range fields {
		lv, rv := fieldValue(l, f), fieldValue(r, f)
		if lv == rv {
			continue
		}
		status = model.StatusPartial
		ev = append(ev, model.Evidence{Field: f, Left: lv, Right: rv})
	}
	return status, ev
}

func fieldValue(id model.TournamentIdentity, field string) string {
	switch field {
	case "episode":
		return intOrEmpty(id.Episode)
	case "day":
		return id.Day
	case "part":
		return intOrEmpty(id.Part)
	case "event_type":
		if id.EventType == model.EventUnknown {
			return ""
		}
		return string(id.EventType)
	}
	return ""
}
