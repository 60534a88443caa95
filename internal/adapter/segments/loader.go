package segments

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"CatalogSync/internal/adapter"
	"CatalogSync/internal/config"
	"CatalogSync/internal/model"

	"github.com/sirupsen/logrus"
)

// Loader 读取片段表（JSON 数组或 CSV），按 file_name 关联文件
type Loader struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewLoader(cfg *config.SourceConfig, logger *logrus.Logger) (*Loader, error) {
	client, err := adapter.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Loader{cfg: cfg, httpClient: client, logger: logger}, nil
}

// Enabled 是否配置了片段表
func (l *Loader) Enabled() bool { return l.cfg != nil && l.cfg.Enabled() }

// Required 片段表缺失时是否跳过整个对账
func (l *Loader) Required() bool { return l.cfg != nil && l.cfg.Required }

// Load 未配置时返回空
func (l *Loader) Load(ctx context.Context) ([]model.SegmentRecord, error) {
	if !l.Enabled() {
		return nil, nil
	}
	data, err := adapter.ReadInput(ctx, l.cfg, l.httpClient)
	if err != nil {
		return nil, fmt.Errorf("获取片段表失败: %w", err)
	}
	if adapter.DetectFormat(l.cfg) == adapter.FormatCSV {
		return DecodeCSV(data)
	}
	var recs []model.SegmentRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("解析片段表失败: %w", err)
	}
	return recs, nil
}

// DecodeCSV 列：file_name,in_tc,out_tc,rating,winner,udm_status（不区分大小写）
func DecodeCSV(data []byte) ([]model.SegmentRecord, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取片段表表头失败: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	get := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var out []model.SegmentRecord
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取片段表第 %d 行失败: %w", line, err)
		}
		rec := model.SegmentRecord{
			FileName:  get(row, "file_name"),
			InTC:      get(row, "in_tc"),
			OutTC:     get(row, "out_tc"),
			Winner:    get(row, "winner"),
			UDMStatus: get(row, "udm_status"),
		}
		if v := get(row, "rating"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				fi := model.FlexInt(n)
				rec.Rating = &fi
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
