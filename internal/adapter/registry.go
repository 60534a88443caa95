package adapter

import (
	"fmt"
	"sort"

	"CatalogSync/internal/config"
	"CatalogSync/internal/interfaces"
	"CatalogSync/internal/model"

	"github.com/sirupsen/logrus"
)

// SourceRegistry 按配置实例化的来源适配器
type SourceRegistry struct {
	cfg    *config.Config
	logger *logrus.Logger
	// 存储来源→适配器实例的映射
	adapters map[model.Provenance]interfaces.SourceAdapter
	required map[model.Provenance]bool
}

// NewSourceRegistry 从工厂注册表为每个已配置来源创建实例；
// 必需来源构造失败时返回错误，可选来源只记日志
func NewSourceRegistry(cfg *config.Config, logger *logrus.Logger) (*SourceRegistry, error) {
	r := &SourceRegistry{
		cfg:      cfg,
		logger:   logger,
		adapters: make(map[model.Provenance]interfaces.SourceAdapter),
		required: make(map[model.Provenance]bool),
	}
	if err := r.initAdaptersFromFactories(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry 直接使用给定适配器（测试与 CLI 单文件模式）
func NewStaticRegistry(logger *logrus.Logger, required map[model.Provenance]bool, adapters ...interfaces.SourceAdapter) *SourceRegistry {
	r := &SourceRegistry{
		logger:   logger,
		adapters: make(map[model.Provenance]interfaces.SourceAdapter),
		required: make(map[model.Provenance]bool),
	}
	for _, a := range adapters {
		r.adapters[a.Provenance()] = a
	}
	for p, req := range required {
		r.required[p] = req
	}
	return r
}

// initAdaptersFromFactories 从工厂函数注册表初始化适配器实例
func (r *SourceRegistry) initAdaptersFromFactories() error {
	r.logger.WithField("factory_sources", ListFactories()).Debug("已注册的来源工厂函数")

	names := make([]string, 0, len(r.cfg.Sources))
	for name := range r.cfg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		srcCfg := r.cfg.Sources[name]
		p := model.Provenance(name)
		if !p.Valid() {
			return fmt.Errorf("未知来源 %q（可选：streaming/filesystem/external）", name)
		}
		if srcCfg.Required {
			r.required[p] = true
		}
		if !srcCfg.Enabled() {
			if srcCfg.Required {
				return fmt.Errorf("必需来源 %s 未配置 path/url/scan_root", name)
			}
			continue
		}

		factory, ok := GetFactory(p)
		if !ok {
			return fmt.Errorf("来源 %s 未找到对应的工厂函数（init未注册？）", name)
		}
		cfgCopy := srcCfg
		adapterIns, err := factory(&cfgCopy, r.logger)
		if err != nil {
			if srcCfg.Required {
				return fmt.Errorf("初始化来源 %s 失败: %w", name, err)
			}
			r.logger.WithError(err).WithField("source", name).Warn("可选来源初始化失败，已跳过")
			continue
		}
		r.adapters[p] = adapterIns
		r.logger.WithField("source", name).Info("来源适配器初始化成功并加入注册表")
	}
	return nil
}

// Adapters 已初始化的适配器（按来源名排序）
func (r *SourceRegistry) Adapters() []interfaces.SourceAdapter {
	ps := r.ListRegisteredSources()
	out := make([]interfaces.SourceAdapter, 0, len(ps))
	for _, p := range ps {
		out = append(out, r.adapters[p])
	}
	return out
}

// ListRegisteredSources 获取所有已初始化的来源
func (r *SourceRegistry) ListRegisteredSources() []model.Provenance {
	out := make([]model.Provenance, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetAdapter 获取适配器实例
func (r *SourceRegistry) GetAdapter(p model.Provenance) (interfaces.SourceAdapter, error) {
	adapterIns, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("来源%s未初始化适配器实例（已初始化：%v）", p, r.ListRegisteredSources())
	}
	return adapterIns, nil
}

// Required 来源是否为必需
func (r *SourceRegistry) Required(p model.Provenance) bool {
	return r.required[p]
}

// GetSourceCount 获取已初始化实例的来源数量
func (r *SourceRegistry) GetSourceCount() int {
	return len(r.adapters)
}
