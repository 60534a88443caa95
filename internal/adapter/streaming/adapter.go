package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"CatalogSync/internal/adapter"
	"CatalogSync/internal/config"
	"CatalogSync/internal/interfaces"
	"CatalogSync/internal/model"

	"github.com/sirupsen/logrus"
)

func init() {
	adapter.Register(model.ProvenanceStreaming, NewStreamingAdapter)
}

// Adapter 读取爬虫产出的流媒体目录 JSON：{ "videos": [...] }
type Adapter struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewStreamingAdapter(cfg *config.SourceConfig, logger *logrus.Logger) (interfaces.SourceAdapter, error) {
	if cfg.Path == "" && cfg.URL == "" {
		return nil, fmt.Errorf("streaming 来源需要 path 或 url")
	}
	client, err := adapter.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, httpClient: client, logger: logger}, nil
}

func (a *Adapter) Provenance() model.Provenance { return model.ProvenanceStreaming }

func (a *Adapter) FetchRecords(ctx context.Context) ([]*model.RawRecord, error) {
	data, err := adapter.ReadInput(ctx, a.cfg, a.httpClient)
	if err != nil {
		return nil, fmt.Errorf("获取流媒体目录失败: %w", err)
	}
	return Decode(data)
}

// Decode 解析流媒体目录；兼容顶层直接是数组的旧导出
func Decode(data []byte) ([]*model.RawRecord, error) {
	var videos []json.RawMessage
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &videos); err != nil {
			return nil, fmt.Errorf("解析流媒体目录失败: %w", err)
		}
	} else {
		var catalog struct {
			Videos []json.RawMessage `json:"videos"`
		}
		if err := json.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("解析流媒体目录失败: %w", err)
		}
		videos = catalog.Videos
	}

	records := make([]*model.RawRecord, 0, len(videos))
	for i, raw := range videos {
		var v model.StreamingVideo
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("解析第 %d 个视频失败: %w", i, err)
		}
		records = append(records, &model.RawRecord{
			NaturalKey: strings.TrimSpace(v.URL),
			Title:      v.Title,
			Slug:       v.Slug,
			Raw:        raw,
		})
	}
	return records, nil
}
