package adapter

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"CatalogSync/internal/config"
	"CatalogSync/internal/interfaces"
	"CatalogSync/internal/model"
	"CatalogSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
)

// Factory 来源适配器工厂函数签名
// 入参：来源配置、日志实例
// 出参：实现SourceAdapter接口的适配器实例
type Factory func(cfg *config.SourceConfig, logger *logrus.Logger) (interfaces.SourceAdapter, error)

// ========== 全局工厂函数注册表 ==========
var factoryRegistry = make(map[model.Provenance]Factory)

// Register 供适配器init函数调用，注册工厂函数
func Register(p model.Provenance, factory Factory) {
	if factory == nil {
		panic(fmt.Sprintf("来源%s的工厂函数不能为nil", p))
	}
	if _, exists := factoryRegistry[p]; exists {
		logrus.Warnf("来源%s的适配器已注册，将覆盖原有实现", p)
	}
	factoryRegistry[p] = factory
}

// GetFactory 获取指定来源的工厂函数
func GetFactory(p model.Provenance) (Factory, bool) {
	factory, ok := factoryRegistry[p]
	return factory, ok
}

// ListFactories 列出所有已注册的工厂函数来源（有序）
func ListFactories() []model.Provenance {
	out := make([]model.Provenance, 0, len(factoryRegistry))
	for p := range factoryRegistry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// 输入格式
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// DetectFormat 显式配置优先，否则按路径/URL 扩展名判断，默认 json
func DetectFormat(cfg *config.SourceConfig) string {
	if f := strings.ToLower(strings.TrimSpace(cfg.Format)); f != "" {
		return f
	}
	target := cfg.Path
	if target == "" {
		target = cfg.URL
	}
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if strings.EqualFold(filepath.Ext(target), ".csv") {
		return FormatCSV
	}
	return FormatJSON
}

// NewClient 配置了 url 时构建 HTTP 客户端，否则返回 nil
func NewClient(cfg *config.SourceConfig, logger *logrus.Logger) (*http.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, fmt.Errorf("仅支持 http(s) 地址: %s", cfg.URL)
	}
	return httpclient.NewHTTPClient(cfg, logger), nil
}

// ReadInput 读取来源内容：url 优先（经 httpclient），否则读本地文件
func ReadInput(ctx context.Context, cfg *config.SourceConfig, client *http.Client) ([]byte, error) {
	if cfg.URL != "" {
		if client == nil {
			return nil, fmt.Errorf("来源 %s 缺少 HTTP 客户端", cfg.URL)
		}
		return httpclient.Get(ctx, client, cfg.URL, cfg.AuthToken)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("未配置 path 或 url")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", cfg.Path, err)
	}
	return data, nil
}
