package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Provenance 条目来源目录
type Provenance string

const (
	ProvenanceStreaming  Provenance = "streaming"
	ProvenanceFilesystem Provenance = "filesystem"
	ProvenanceExternal   Provenance = "external"
)

// Valid 是否为已知来源
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceStreaming, ProvenanceFilesystem, ProvenanceExternal:
		return true
	}
	return false
}

// RawRecord 各来源适配器输出的通用原始记录（抹平各来源差异），供规范化使用
type RawRecord struct {
	NaturalKey string          // 自然键：URL / 绝对路径 / 外部目录 ID
	Title      string          // 标题（可能为空）
	Slug       string          // 页面 slug（仅流媒体）
	FileName   string          // 文件名（仅文件系统/外部导出）
	SizeBytes  *int64          // 文件大小（可选）
	ModifiedAt *time.Time      // 修改时间（可选）
	Raw        json.RawMessage // 原始字段，审计用
}

// CatalogEntry 规范化后的目录条目，插入后不可变
type CatalogEntry struct {
	EntryID      string             `json:"entry_id"`
	Provenance   Provenance         `json:"provenance"`
	NaturalKey   string             `json:"natural_key"`
	DisplayName  string             `json:"display_name"`
	FileName     string             `json:"file_name,omitempty"`
	Identity     TournamentIdentity `json:"identity"`
	MatchedRules []string           `json:"matched_rules,omitempty"` // 抽取身份时写入过字段的规则 id，按命中顺序
	SizeBytes    *int64             `json:"size_bytes,omitempty"`
	ModifiedAt   *time.Time         `json:"modified_at,omitempty"`
	Raw          json.RawMessage    `json:"raw,omitempty"`
}

// BuildEntryID 由 (provenance, natural_key) 计算稳定的条目 ID
func BuildEntryID(p Provenance, naturalKey string) string {
	h := sha256.Sum256([]byte(string(p) + "|" + naturalKey))
	return hex.EncodeToString(h[:])[:32]
}
