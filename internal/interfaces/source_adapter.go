package interfaces

import (
	"context"

	"CatalogSync/internal/model"
)

// SourceAdapter 每个来源目录必须实现的核心接口
type SourceAdapter interface {
	Provenance() model.Provenance                                 // 来源
	FetchRecords(ctx context.Context) ([]*model.RawRecord, error) // 读取并转换为通用原始记录
}
