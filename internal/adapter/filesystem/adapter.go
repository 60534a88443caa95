package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"CatalogSync/internal/adapter"
	"CatalogSync/internal/config"
	"CatalogSync/internal/interfaces"
	"CatalogSync/internal/model"
	"CatalogSync/internal/nas"

	"github.com/sirupsen/logrus"
)

func init() {
	adapter.Register(model.ProvenanceFilesystem, NewFilesystemAdapter)
}

// Adapter 文件系统目录：读取扫描器导出的描述 JSON，或直接扫描 scan_root
type Adapter struct {
	cfg        *config.SourceConfig
	scanner    *nas.Scanner
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewFilesystemAdapter(cfg *config.SourceConfig, logger *logrus.Logger) (interfaces.SourceAdapter, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("filesystem 来源需要 scan_root、path 或 url")
	}
	client, err := adapter.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, scanner: nas.NewScanner(logger), httpClient: client, logger: logger}, nil
}

func (a *Adapter) Provenance() model.Provenance { return model.ProvenanceFilesystem }

func (a *Adapter) FetchRecords(ctx context.Context) ([]*model.RawRecord, error) {
	var descriptors []model.FileDescriptor
	if a.cfg.ScanRoot != "" {
		files, err := a.scanner.Scan(ctx, a.cfg.ScanRoot)
		if err != nil {
			return nil, fmt.Errorf("扫描 %s 失败: %w", a.cfg.ScanRoot, err)
		}
		descriptors = files
	} else {
		data, err := adapter.ReadInput(ctx, a.cfg, a.httpClient)
		if err != nil {
			return nil, fmt.Errorf("获取文件描述失败: %w", err)
		}
		if err := json.Unmarshal(data, &descriptors); err != nil {
			return nil, fmt.Errorf("解析文件描述失败: %w", err)
		}
	}
	return ToRecords(descriptors), nil
}

// ToRecords 文件描述转通用原始记录，path 为自然键
func ToRecords(descriptors []model.FileDescriptor) []*model.RawRecord {
	records := make([]*model.RawRecord, 0, len(descriptors))
	for i := range descriptors {
		d := descriptors[i]
		raw, _ := json.Marshal(d)
		rec := &model.RawRecord{
			NaturalKey: d.Path,
			FileName:   d.FileName,
			Raw:        raw,
		}
		size := d.SizeBytes
		rec.SizeBytes = &size
		if !d.ModifiedAt.IsZero() {
			mt := d.ModifiedAt
			rec.ModifiedAt = &mt
		}
		records = append(records, rec)
	}
	return records
}
