package identity

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"CatalogSync/internal/model"
)

// Extractor 按规则表把标题/文件名解析为 TournamentIdentity。
// Extract 是纯函数：同一输入 + 同一规则表得到完全相同的结果。
type Extractor struct {
	table     *PatternTable
	layers    []compiledLayer
	yearRegex sync.Map // "ruleIndex:year" -> *regexp.Regexp
}

type compiledLayer struct {
	name      string
	exclusive bool
	rules     []*compiledRule
}

type compiledRule struct {
	spec      RuleSpec
	index     int // 全表顺序，最终 tie-break
	re        *regexp.Regexp
	prefixLen int
	setKeys   []string
}

// candidate 同层内一条命中的规则
type candidate struct {
	rule   *compiledRule
	start  int
	end    int
	values map[string]string
}

// NewExtractor 编译规则表
func NewExtractor(table *PatternTable) (*Extractor, error) {
	if table == nil {
		return nil, fmt.Errorf("规则表为空")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	e := &Extractor{table: table}
	index := 0
	for _, l := range table.Layers {
		cl := compiledLayer{name: l.Name, exclusive: l.Exclusive}
		for _, r := range l.Rules {
			cr := &compiledRule{spec: r, index: index, prefixLen: literalPrefixLen(r.Pattern)}
			index++
			if !r.requiresYear() {
				cr.re = regexp.MustCompile(r.Pattern)
			}
			for k := range r.Set {
				cr.setKeys = append(cr.setKeys, k)
			}
			sort.Strings(cr.setKeys)
			cl.rules = append(cl.rules, cr)
		}
		e.layers = append(e.layers, cl)
	}
	return e, nil
}

// NewDefaultExtractor 使用内置规则表
func NewDefaultExtractor() (*Extractor, error) {
	t, err := DefaultTable()
	if err != nil {
		return nil, err
	}
	return NewExtractor(t)
}

// Table 当前规则表
func (e *Extractor) Table() *PatternTable { return e.table }

// NormalizeText 转小写并把分隔符折叠为单个空格
func NormalizeText(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

// Extract 解析身份，永不失败；无法识别时返回全 unknown 的身份
func (e *Extractor) Extract(text string) model.TournamentIdentity {
	return e.ExtractDetail(text).Identity
}

// RuleHit 一条被采纳的规则：所在层、在规范化文本中的命中区间与写入的字段
type RuleHit struct {
	RuleID string            `json:"rule_id"`
	Layer  string            `json:"layer"`
	Start  int               `json:"start"`
	End    int               `json:"end"`
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields"`
}

// Detail 抽取过程明细，供规则分析与调试
type Detail struct {
	Input      string                   `json:"input"`
	Normalized string                   `json:"normalized"`
	Identity   model.TournamentIdentity `json:"identity"`
	Hits       []RuleHit                `json:"hits"`
}

// Matched 是否至少有一条规则写入了字段
func (d Detail) Matched() bool { return len(d.Hits) > 0 }

// RuleIDs 按命中顺序列出规则 id
func (d Detail) RuleIDs() []string {
	ids := make([]string, len(d.Hits))
	for i, h := range d.Hits {
		ids[i] = h.RuleID
	}
	return ids
}

// ExtractDetail 与 Extract 相同的解析，同时记录每条被采纳的规则。
// 只有真正填充了字段的规则才计入 Hits
func (e *Extractor) ExtractDetail(text string) Detail {
	norm := NormalizeText(text)
	d := Detail{Input: text, Normalized: norm, Hits: []RuleHit{}}
	if norm == "" {
		d.Identity = model.UnknownIdentity()
		return d
	}
	var id model.TournamentIdentity
	for _, layer := range e.layers {
		cands := e.candidates(layer, norm, &id)
		for len(cands) > 0 {
			i := pick(cands)
			c := cands[i]
			if applied := applyCandidate(&id, c); len(applied) > 0 {
				d.Hits = append(d.Hits, RuleHit{
					RuleID: c.rule.spec.ID,
					Layer:  layer.name,
					Start:  c.start,
					End:    c.end,
					Text:   norm[c.start:c.end],
					Fields: applied,
				})
			}
			cands = append(cands[:i], cands[i+1:]...)
			if layer.exclusive {
				break
			}
		}
	}
	d.Identity = e.finish(id)
	return d
}

func (e *Extractor) candidates(layer compiledLayer, norm string, id *model.TournamentIdentity) []candidate {
	var out []candidate
	for _, r := range layer.rules {
		re := r.re
		if r.spec.requiresYear() {
			if id.Year == 0 {
				continue
			}
			re = e.regexForYear(r, id.Year)
		}
		loc := re.FindStringSubmatchIndex(norm)
		if loc == nil {
			continue
		}
		values := make(map[string]string, len(r.setKeys)+1)
		for _, k := range r.setKeys {
			values[k] = r.spec.Set[k]
		}
		if r.spec.Field != "" {
			g := r.spec.Group
			if loc[2*g] < 0 {
				continue
			}
			v, ok := convertCapture(r.spec.Field, r.spec.Transform, norm[loc[2*g]:loc[2*g+1]])
			if !ok {
				continue
			}
			values[r.spec.Field] = v
		}
		out = append(out, candidate{rule: r, start: loc[0], end: loc[1], values: values})
	}
	return out
}

func (e *Extractor) regexForYear(r *compiledRule, year int) *regexp.Regexp {
	key := strconv.Itoa(r.index) + ":" + strconv.Itoa(year)
	if cached, ok := e.yearRegex.Load(key); ok {
		return cached.(*regexp.Regexp)
	}
	re := regexp.MustCompile(strings.ReplaceAll(r.spec.Pattern, yearPlaceholder, strconv.Itoa(year)))
	actual, _ := e.yearRegex.LoadOrStore(key, re)
	return actual.(*regexp.Regexp)
}

// pick 选出同层胜出的候选：priority 高者优先，其次最左；与之重叠且字面前缀更长的规则取而代之
func pick(cands []candidate) int {
	maxPrio := cands[0].rule.spec.Priority
	for _, c := range cands[1:] {
		if c.rule.spec.Priority > maxPrio {
			maxPrio = c.rule.spec.Priority
		}
	}
	best := -1
	for i, c := range cands {
		if c.rule.spec.Priority != maxPrio {
			continue
		}
		if best < 0 || leftmostBefore(c, cands[best]) {
			best = i
		}
	}
	winner := best
	for i, c := range cands {
		if i == best || c.rule.spec.Priority != maxPrio || !overlaps(c, cands[best]) {
			continue
		}
		if c.rule.prefixLen <= cands[best].rule.prefixLen {
			continue
		}
		w := cands[winner]
		if winner == best || c.rule.prefixLen > w.rule.prefixLen ||
			(c.rule.prefixLen == w.rule.prefixLen && leftmostBefore(c, w)) {
			winner = i
		}
	}
	return winner
}

func leftmostBefore(a, b candidate) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	if a.rule.prefixLen != b.rule.prefixLen {
		return a.rule.prefixLen > b.rule.prefixLen
	}
	return a.rule.index < b.rule.index
}

func overlaps(a, b candidate) bool {
	return a.start < b.end && b.start < a.end
}

// applyCandidate 只填充仍为空的字段，返回实际写入的字段
func applyCandidate(id *model.TournamentIdentity, c candidate) map[string]string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	applied := map[string]string{}
	for _, k := range keys {
		v := c.values[k]
		switch k {
		case FieldBrand:
			if id.Brand != "" {
				continue
			}
			id.Brand = model.Brand(v)
		case FieldRegion:
			if id.Region != "" {
				continue
			}
			id.Region = model.Region(v)
		case FieldEventType:
			if id.EventType != "" {
				continue
			}
			id.EventType = model.EventType(v)
		case FieldDay:
			if id.Day != "" {
				continue
			}
			id.Day = v
		case FieldYear:
			if id.Year != 0 {
				continue
			}
			id.Year, _ = strconv.Atoi(v)
		case FieldEpisode:
			if id.Episode != 0 {
				continue
			}
			id.Episode, _ = strconv.Atoi(v)
		case FieldPart:
			if id.Part != 0 {
				continue
			}
			id.Part, _ = strconv.Atoi(v)
		case FieldShowNumber:
			if id.ShowNumber != 0 {
				continue
			}
			id.ShowNumber, _ = strconv.Atoi(v)
		default:
			continue
		}
		applied[k] = v
	}
	return applied
}

// finish 补全默认值：无品牌但有其他信号时按年份归入 classic / main
func (e *Extractor) finish(id model.TournamentIdentity) model.TournamentIdentity {
	signal := id.Year > 0 || id.Episode > 0 || id.ShowNumber > 0 || id.Day != "" || id.Part > 0 || id.EventType != ""
	if id.Brand == "" {
		switch {
		case !signal:
			id.Brand = model.BrandUnknown
		case id.Year > 0 && id.Year <= e.table.ClassicUntilYear:
			id.Brand = model.BrandClassic
		default:
			id.Brand = model.BrandMain
		}
	}
	if id.Region == "" {
		switch id.Brand {
		case model.BrandMain, model.BrandClassic:
			id.Region = model.RegionMain
		case model.BrandEuropean:
			id.Region = model.RegionEurope
		case model.BrandUnknown:
			id.Region = model.RegionUnknown
		default:
			id.Region = model.RegionOther
		}
	}
	if id.EventType == "" {
		id.EventType = model.EventUnknown
	}
	return id
}

func convertCapture(field, transform, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	switch field {
	case FieldDay:
		if transform == TransformUpper {
			raw = strings.ToUpper(raw)
		}
		return raw, true
	case FieldYear:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", false
		}
		if transform == TransformTwoDigitYear {
			n += 2000
		}
		if n < 1900 || n > 2099 {
			return "", false
		}
		return strconv.Itoa(n), true
	case FieldEpisode, FieldPart, FieldShowNumber:
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return "", false
		}
		return strconv.Itoa(n), true
	}
	if transform == TransformUpper {
		raw = strings.ToUpper(raw)
	}
	return raw, true
}

// literalPrefixLen 规则的字面前缀长度（忽略开头的 \b 与 ^），用于重叠时判断哪条更具体
func literalPrefixLen(pattern string) int {
	p := strings.ReplaceAll(pattern, yearPlaceholder, "0000")
	for {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(p, `\b`), "^")
		if trimmed == p {
			break
		}
		p = trimmed
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return 0
	}
	prefix, _ := re.LiteralPrefix()
	return len(prefix)
}
