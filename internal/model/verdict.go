package model

// MatchStatus 匹配结论状态
type MatchStatus string

const (
	StatusComplete  MatchStatus = "complete"
	StatusPartial   MatchStatus = "partial"
	StatusLeftOnly  MatchStatus = "left_only"
	StatusRightOnly MatchStatus = "right_only"
)

// Paired 是否为配对成功的状态
func (s MatchStatus) Paired() bool {
	return s == StatusComplete || s == StatusPartial
}

// Valid 是否为已知状态
func (s MatchStatus) Valid() bool {
	switch s {
	case StatusComplete, StatusPartial, StatusLeftOnly, StatusRightOnly:
		return true
	}
	return false
}

// Confidence 匹配置信度
type Confidence string

const (
	ConfidenceExact  Confidence = "exact"
	ConfidenceStrong Confidence = "strong"
	ConfidenceWeak   Confidence = "weak"
	ConfidenceNone   Confidence = "none" // 未配对
)

// 规则 ID（按层级从高到低）
const (
	RuleShowNumberBridge  = "show_number_bridge"
	RuleYearRegionEpisode = "year_region_episode"
	RuleYearRegionDay     = "year_region_day"
	RuleYearRegionEvent   = "year_region_event_type"
	RuleYearRegion        = "year_region"
	RuleUnpaired          = "unpaired"
)

// Evidence 支撑匹配结论的一条字段重合证据
type Evidence struct {
	Field string `json:"field"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// MatchVerdict 匹配器输出：一对（或未配对的单侧）条目的结论
type MatchVerdict struct {
	LeftEntryID  string      `json:"left_entry_id,omitempty"`
	RightEntryID string      `json:"right_entry_id,omitempty"`
	Status       MatchStatus `json:"status"`
	Confidence   Confidence  `json:"confidence"`
	RuleID       string      `json:"rule_id"`
	Layer        int         `json:"layer"`
	Evidence     []Evidence  `json:"evidence"`
}

// Rank 结论强度，数值越大越强（用于按条目选取最强结论）
func (v *MatchVerdict) Rank() int {
	rank := 0
	switch v.Status {
	case StatusComplete:
		rank = 300
	case StatusPartial:
		rank = 200
	}
	switch v.Confidence {
	case ConfidenceExact:
		rank += 30
	case ConfidenceStrong:
		rank += 20
	case ConfidenceWeak:
		rank += 10
	}
	if v.Layer > 0 {
		rank += 10 - v.Layer
	}
	return rank
}

// Counterpart 返回给定条目在该结论中的对侧条目 ID
func (v *MatchVerdict) Counterpart(entryID string) string {
	switch entryID {
	case v.LeftEntryID:
		return v.RightEntryID
	case v.RightEntryID:
		return v.LeftEntryID
	}
	return ""
}
