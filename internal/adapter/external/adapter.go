package external

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
	"CatalogSync/internal/interfaces"
	"CatalogSync/internal/model"

	"github.com/sirupsen/logrus"
)

func init() {
	adapter.Register(model.ProvenanceExternal, NewExternalAdapter)
}

// Adapter 外部参考目录（JSON 数组或表格导出的 CSV），本地文件或 http(s) 地址
type Adapter struct {
	cfg        *config.SourceConfig
	format     string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewExternalAdapter(cfg *config.SourceConfig, logger *logrus.Logger) (interfaces.SourceAdapter, error) {
	if cfg.Path == "" && cfg.URL == "" {
		return nil, fmt.Errorf("external 来源需要 path 或 url")
	}
	format := adapter.DetectFormat(cfg)
	if format != adapter.FormatJSON && format != adapter.FormatCSV {
		return nil, fmt.Errorf("external 来源不支持格式 %q", format)
	}
	client, err := adapter.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, format: format, httpClient: client, logger: logger}, nil
}

func (a *Adapter) Provenance() model.Provenance { return model.ProvenanceExternal }

func (a *Adapter) FetchRecords(ctx context.Context) ([]*model.RawRecord, error) {
	data, err := adapter.ReadInput(ctx, a.cfg, a.httpClient)
	if err != nil {
		return nil, fmt.Errorf("获取外部目录失败: %w", err)
	}
	var recs []model.ExternalRecord
	var raws []json.RawMessage
	if a.format == adapter.FormatCSV {
		recs, err = DecodeCSV(data)
	} else {
		recs, raws, err = DecodeJSON(data)
	}
	if err != nil {
		return nil, err
	}
	a.logger.WithFields(logrus.Fields{"format": a.format, "records": len(recs)}).Debug("外部目录读取完成")

	out := make([]*model.RawRecord, 0, len(recs))
	for i, r := range recs {
		var raw json.RawMessage
		if raws != nil {
			raw = raws[i]
		} else {
			raw, _ = json.Marshal(r)
		}
		out = append(out, &model.RawRecord{
			NaturalKey: strings.TrimSpace(r.ID),
			Title:      r.Title,
			FileName:   r.FileName,
			Raw:        raw,
		})
	}
	return out, nil
}

// DecodeJSON 解析 [{id,title,filename?,year?,category?}]，同时保留每条原始 JSON
func DecodeJSON(data []byte) ([]model.ExternalRecord, []json.RawMessage, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("解析外部目录 JSON 失败: %w", err)
	}
	recs := make([]model.ExternalRecord, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &recs[i]); err != nil {
			return nil, nil, fmt.Errorf("解析外部目录第 %d 条失败: %w", i, err)
		}
	}
	return recs, raws, nil
}

// DecodeCSV 解析表格导出；首行为表头，列名不区分大小写，缺失列视为空
func DecodeCSV(data []byte) ([]model.ExternalRecord, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取 CSV 表头失败: %w", err)
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

	var out []model.ExternalRecord
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取 CSV 第 %d 行失败: %w", line, err)
		}
		rec := model.ExternalRecord{
			ID:       get(row, "id"),
			Title:    get(row, "title"),
			FileName: get(row, "filename"),
			Category: get(row, "category"),
		}
		if y := get(row, "year"); y != "" {
			if n, err := strconv.Atoi(y); err == nil {
				fy := model.FlexInt(n)
				rec.Year = &fy
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
