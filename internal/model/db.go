package model

import (
	"time"

	"gorm.io/datatypes"
)

// ReconcileRun 一次对账（reconciliation pass）的审计记录
type ReconcileRun struct {
	ID           uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	RunUUID      string         `gorm:"column:run_uuid;type:varchar(64);uniqueIndex;not null;comment:对账批次ID"`
	StartedAt    time.Time      `gorm:"column:started_at;not null;comment:开始时间"`
	FinishedAt   time.Time      `gorm:"column:finished_at;not null;comment:结束时间"`
	Status       string         `gorm:"column:status;type:varchar(16);not null;comment:状态：published/failed"`
	EntryCount   int            `gorm:"column:entry_count;default:0;comment:条目总数"`
	VerdictCount int            `gorm:"column:verdict_count;default:0;comment:结论总数"`
	Stats        datatypes.JSON `gorm:"column:stats;type:jsonb;comment:统计快照"`
	Error        string         `gorm:"column:error;type:text;comment:失败原因"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
}

// VerdictRecord 对账批次中的单条匹配结论
type VerdictRecord struct {
	ID           uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	RunUUID      string         `gorm:"column:run_uuid;type:varchar(64);index;not null;comment:对账批次ID"`
	LeftEntryID  string         `gorm:"column:left_entry_id;type:varchar(64);index;comment:左侧（文件系统）条目"`
	RightEntryID string         `gorm:"column:right_entry_id;type:varchar(64);index;comment:右侧（流媒体/外部）条目"`
	Status       string         `gorm:"column:status;type:varchar(16);not null;comment:complete/partial/left_only/right_only"`
	Confidence   string         `gorm:"column:confidence;type:varchar(16);not null;comment:置信度"`
	RuleID       string         `gorm:"column:rule_id;type:varchar(64);not null;comment:命中规则"`
	Evidence     datatypes.JSON `gorm:"column:evidence;type:jsonb;comment:证据"`
}

func (ReconcileRun) TableName() string  { return "reconcile_runs" }
func (VerdictRecord) TableName() string { return "verdict_records" }
