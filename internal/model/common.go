package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// StreamingCatalog 流媒体站点目录导出（爬虫产物）
type StreamingCatalog struct {
	Videos []StreamingVideo `json:"videos"`
}

// StreamingVideo 流媒体目录中的单个视频页面
type StreamingVideo struct {
	URL       string   `json:"url"`                 // 自然键
	Slug      string   `json:"slug"`                // 页面 slug
	Title     string   `json:"title"`               // 标题（可能为空）
	Year      *FlexInt `json:"year,omitempty"`      // 年份（爬虫有时给字符串）
	Category  string   `json:"category,omitempty"`  // 分类
	Thumbnail string   `json:"thumbnail,omitempty"` // 缩略图
	Source    string   `json:"source,omitempty"`    // 来源合集
}

// FileDescriptor 文件系统扫描器输出的文件描述
type FileDescriptor struct {
	FileName   string    `json:"filename"`
	Path       string    `json:"path"` // 自然键（绝对路径）
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
	Extension  string    `json:"extension"`
}

// ExternalRecord 外部参考目录（JSON / 表格导出）中的一条记录
type ExternalRecord struct {
	ID       string   `json:"id"` // 自然键
	Title    string   `json:"title"`
	FileName string   `json:"filename,omitempty"`
	Year     *FlexInt `json:"year,omitempty"`
	Category string   `json:"category,omitempty"`
}

// SegmentRecord 片段表中的一行，按 file_name 关联文件
type SegmentRecord struct {
	FileName  string   `json:"file_name"`
	InTC      string   `json:"in_tc"`
	OutTC     string   `json:"out_tc"`
	Rating    *FlexInt `json:"rating,omitempty"`
	Winner    string   `json:"winner,omitempty"`
	UDMStatus string   `json:"udm_status"`
}

// FlexInt 兼容数字与数字字符串的整数（导出数据里两种写法都有）
type FlexInt int

// UnmarshalJSON 接受 2007 / "2007" / "" / null
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*f = FlexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Float64()
	if err != nil {
		return err
	}
	*f = FlexInt(int(v))
	return nil
}

// Int 取值，nil 视为 0
func (f *FlexInt) Int() int {
	if f == nil {
		return 0
	}
	return int(*f)
}
