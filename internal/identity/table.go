package identity

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"CatalogSync/internal/model"

	"gopkg.in/yaml.v3"
)

//go:embed default_patterns.yaml
var defaultPatternsYAML []byte

// 规则可写入的身份字段
const (
	FieldBrand      = "brand"
	FieldYear       = "year"
	FieldRegion     = "region"
	FieldEventType  = "event_type"
	FieldEpisode    = "episode"
	FieldDay        = "day"
	FieldPart       = "part"
	FieldShowNumber = "show_number"
)

// 捕获值转换方式
const (
	TransformNone         = ""
	TransformUpper        = "upper"
	TransformTwoDigitYear = "two_digit_year"
)

const yearPlaceholder = "{year}"

// PatternTable 身份抽取规则表（配置而非代码）
type PatternTable struct {
	Version          int         `yaml:"version"`
	ClassicUntilYear int         `yaml:"classic_until_year"`
	Layers           []LayerSpec `yaml:"layers"`
}

// LayerSpec 规则层
type LayerSpec struct {
	Name      string     `yaml:"name"`
	Exclusive bool       `yaml:"exclusive"`
	Rules     []RuleSpec `yaml:"rules"`
}

// RuleSpec 单条规则：pattern 命中后写入 field（取 group 捕获值）和/或 set 中的常量
type RuleSpec struct {
	ID        string            `yaml:"id"`
	Pattern   string            `yaml:"pattern"`
	Priority  int               `yaml:"priority"`
	Group     int               `yaml:"group"`
	Field     string            `yaml:"field"`
	Transform string            `yaml:"transform"`
	Set       map[string]string `yaml:"set"`
	Requires  []string          `yaml:"requires"`
}

// DefaultTable 内置规则表
func DefaultTable() (*PatternTable, error) {
	return ParseTable(defaultPatternsYAML)
}

// LoadTable 从 YAML 文件加载规则表；path 为空时返回内置表
func LoadTable(path string) (*PatternTable, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取规则表失败: %w", err)
	}
	return ParseTable(data)
}

// ParseTable 解析并校验规则表
func ParseTable(data []byte) (*PatternTable, error) {
	var t PatternTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("解析规则表失败: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate 校验字段名、枚举值、正则与捕获组
func (t *PatternTable) Validate() error {
	if len(t.Layers) == 0 {
		return fmt.Errorf("规则表为空")
	}
	seen := make(map[string]struct{})
	for _, layer := range t.Layers {
		if layer.Name == "" {
			return fmt.Errorf("规则层缺少 name")
		}
		for _, r := range layer.Rules {
			if r.ID == "" {
				return fmt.Errorf("层 %s 存在缺少 id 的规则", layer.Name)
			}
			if _, dup := seen[r.ID]; dup {
				return fmt.Errorf("规则 id 重复: %s", r.ID)
			}
			seen[r.ID] = struct{}{}
			if err := r.validate(); err != nil {
				return fmt.Errorf("规则 %s: %w", r.ID, err)
			}
		}
	}
	return nil
}

func (r RuleSpec) validate() error {
	if r.Field == "" && len(r.Set) == 0 {
		return fmt.Errorf("field 与 set 至少需要一个")
	}
	if r.Field != "" && !knownField(r.Field) {
		return fmt.Errorf("未知字段 %q", r.Field)
	}
	for f, v := range r.Set {
		if !knownField(f) {
			return fmt.Errorf("set 中未知字段 %q", f)
		}
		if err := validateConstant(f, v); err != nil {
			return err
		}
	}
	switch r.Transform {
	case TransformNone, TransformUpper, TransformTwoDigitYear:
	default:
		return fmt.Errorf("未知 transform %q", r.Transform)
	}
	for _, req := range r.Requires {
		if req != FieldYear {
			return fmt.Errorf("requires 仅支持 year，得到 %q", req)
		}
	}
	hasPlaceholder := strings.Contains(r.Pattern, yearPlaceholder)
	if hasPlaceholder && !r.requiresYear() {
		return fmt.Errorf("pattern 含 {year} 但未声明 requires: [year]")
	}
	re, err := regexp.Compile(strings.ReplaceAll(r.Pattern, yearPlaceholder, "2000"))
	if err != nil {
		return fmt.Errorf("正则编译失败: %w", err)
	}
	if r.Field != "" && (r.Group <= 0 || r.Group > re.NumSubexp()) {
		return fmt.Errorf("group %d 超出范围（共 %d 个捕获组）", r.Group, re.NumSubexp())
	}
	return nil
}

func (r RuleSpec) requiresYear() bool {
	for _, req := range r.Requires {
		if req == FieldYear {
			return true
		}
	}
	return false
}

func knownField(f string) bool {
	switch f {
	case FieldBrand, FieldYear, FieldRegion, FieldEventType, FieldEpisode, FieldDay, FieldPart, FieldShowNumber:
		return true
	}
	return false
}

func validateConstant(field, value string) error {
	switch field {
	case FieldBrand:
		switch model.Brand(value) {
		case model.BrandMain, model.BrandEuropean, model.BrandClassic, model.BrandHCL, model.BrandPAD,
			model.BrandGGM, model.BrandGOG, model.BrandMPP, model.BrandOther:
			return nil
		}
		return fmt.Errorf("未知 brand %q", value)
	case FieldRegion:
		switch model.Region(value) {
		case model.RegionMain, model.RegionEurope, model.RegionOther:
			return nil
		}
		return fmt.Errorf("未知 region %q", value)
	case FieldEventType:
		switch model.EventType(value) {
		case model.EventMain, model.EventBracelet, model.EventSide, model.EventCash, model.EventOther:
			return nil
		}
		return fmt.Errorf("未知 event_type %q", value)
	case FieldDay:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("day 常量不能为空")
		}
		return nil
	default:
		return fmt.Errorf("字段 %q 不支持常量赋值", field)
	}
}
