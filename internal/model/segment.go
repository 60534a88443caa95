package model

// UDMStatus 片段 UDM 转换状态
type UDMStatus string

const (
	UDMConverted UDMStatus = "converted"
	UDMPending   UDMStatus = "pending"
	UDMFailed    UDMStatus = "failed"
)

// Segment 文件内带时间码的子片段（评级剪辑），归属唯一文件条目
type Segment struct {
	FileEntryID string    `json:"file_entry_id"`
	FileName    string    `json:"file_name"`
	RowNumber   int       `json:"row_number"`
	InTC        string    `json:"in_tc"`
	OutTC       string    `json:"out_tc"`
	InFrames    int64     `json:"in_frames"`
	OutFrames   int64     `json:"out_frames"`
	InSec       float64   `json:"in_sec"`
	OutSec      float64   `json:"out_sec"`
	Rating      *int      `json:"rating,omitempty"`
	Winner      string    `json:"winner,omitempty"`
	UDMStatus   UDMStatus `json:"udm_status"`
}

// CoverageRollup 单文件片段覆盖汇总（派生数据，片段集合变化时重算）
type CoverageRollup struct {
	SegmentCount      int     `json:"segment_count"`
	ConvertedSegments int     `json:"converted_segments"`
	ConversionRate    float64 `json:"conversion_rate"`
	Overlap           bool    `json:"overlap"`
}
