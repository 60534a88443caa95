package model

// Brand 赛事品牌（巡回赛）枚举
type Brand string

const (
	BrandUnknown  Brand = "unknown"
	BrandMain     Brand = "main"             // WSOP 主巡回赛（拉斯维加斯）
	BrandEuropean Brand = "european_variant" // WSOP Europe
	BrandClassic  Brand = "classic"          // 早期/经典素材
	BrandHCL      Brand = "hcl"              // Hustler Casino Live
	BrandPAD      Brand = "pad"              // Poker After Dark
	BrandGGM      Brand = "ggm"              // GG Millions
	BrandGOG      Brand = "gog"              // Game of Gold
	BrandMPP      Brand = "mpp"              // Major Poker Party
	BrandOther    Brand = "OTHER"
)

// Region 地区/赛区
type Region string

const (
	RegionUnknown Region = "unknown"
	RegionMain    Region = "main"
	RegionEurope  Region = "europe"
	RegionOther   Region = "other"
)

// EventType 赛事类型
type EventType string

const (
	EventUnknown  EventType = "unknown"
	EventMain     EventType = "main_event"
	EventBracelet EventType = "bracelet_event"
	EventSide     EventType = "side_event"
	EventCash     EventType = "cash_game"
	EventOther    EventType = "other"
)

// TournamentIdentity 从标题/文件名中抽取出的规范化赛事身份。
// 数值字段 0 表示 unknown/none，Day 为空表示 none。
type TournamentIdentity struct {
	Brand      Brand     `json:"brand"`
	Year       int       `json:"year"`
	Region     Region    `json:"region"`
	EventType  EventType `json:"event_type"`
	Episode    int       `json:"episode"`
	Day        string    `json:"day"`
	Part       int       `json:"part"`
	ShowNumber int       `json:"show_number"`
}

// UnknownIdentity 全部字段未知的身份（无法识别的输入）
func UnknownIdentity() TournamentIdentity {
	return TournamentIdentity{
		Brand:     BrandUnknown,
		Region:    RegionUnknown,
		EventType: EventUnknown,
	}
}

// IsUnresolved 所有字段都未识别
func (t TournamentIdentity) IsUnresolved() bool {
	return (t.Brand == BrandUnknown || t.Brand == "") &&
		t.Year == 0 &&
		(t.Region == RegionUnknown || t.Region == "") &&
		(t.EventType == EventUnknown || t.EventType == "") &&
		t.Episode == 0 && t.Day == "" && t.Part == 0 && t.ShowNumber == 0
}

// HasYear 年份已知
func (t TournamentIdentity) HasYear() bool { return t.Year > 0 }

// BrandFamily 品牌族：main 与 classic 同属 WSOP 主线，european_variant 单独一族
func (t TournamentIdentity) BrandFamily() string {
	switch t.Brand {
	case BrandMain, BrandClassic:
		return "wsop"
	case BrandEuropean:
		return "wsope"
	case "":
		return string(BrandUnknown)
	default:
		return string(t.Brand)
	}
}
