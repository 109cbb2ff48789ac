package xlimit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// ConfigFormat 规则配置文件格式
type ConfigFormat string

const (
	// FormatYAML YAML 格式
	FormatYAML ConfigFormat = "yaml"
	// FormatJSON JSON 格式
	FormatJSON ConfigFormat = "json"
)

// fileConfig 配置文件的原始结构
//
// 维度字段使用指针区分"未出现"与"出现但为空"，二者最终都按通配处理。
type fileConfig struct {
	KeyPrefix      *string    `koanf:"key_prefix"`
	Strategy       string     `koanf:"strategy"`
	KeyScope       string     `koanf:"key_scope"`
	Threshold      string     `koanf:"threshold"`
	CASMaxAttempts int        `koanf:"cas_max_attempts"`
	Rules          []fileRule `koanf:"rules"`
}

type fileRule struct {
	Name         string  `koanf:"name"`
	AccountID    *string `koanf:"account_id"`
	ClientIP     *string `koanf:"client_ip"`
	RequestType  *string `koanf:"request_type"`
	Allowed      int     `koanf:"allowed_number_of_requests"`
	TimeInterval string  `koanf:"time_interval"`
}

// LoadConfigFile 从文件加载并验证配置
//
// 根据扩展名识别格式（.yaml/.yml 或 .json）。section 为配置所在的路径，
// 如 "ratelimit"；为空表示整个文件。
func LoadConfigFile(path, section string) (Config, error) {
	format, err := detectFormat(path)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return Config{}, fmt.Errorf("xlimit: read config %s: %w", path, err)
	}
	return LoadConfigBytes(data, format, section)
}

// LoadConfigBytes 从字节数据加载并验证配置
//
// 未出现的标量字段保持 DefaultConfig 的值。
func LoadConfigBytes(data []byte, format ConfigFormat, section string) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, format)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return Config{}, fmt.Errorf("%w: parse: %w", ErrInvalidConfig, err)
	}
	if section != "" && !k.Exists(section) {
		return Config{}, fmt.Errorf("%w: section %q", ErrConfigNotFound, section)
	}

	var raw fileConfig
	if err := k.UnmarshalWithConf(section, &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal: %w", ErrInvalidConfig, err)
	}

	cfg, err := raw.toConfig()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (f fileConfig) toConfig() (Config, error) {
	cfg := DefaultConfig()
	if f.KeyPrefix != nil {
		cfg.KeyPrefix = *f.KeyPrefix
	}
	if f.Strategy != "" {
		cfg.Strategy = Strategy(strings.ToLower(f.Strategy))
	}
	if f.KeyScope != "" {
		cfg.KeyScope = KeyScope(strings.ToLower(f.KeyScope))
	}
	if f.Threshold != "" {
		cfg.Threshold = Threshold(strings.ToLower(f.Threshold))
	}
	if f.CASMaxAttempts != 0 {
		cfg.CASMaxAttempts = f.CASMaxAttempts
	}

	cfg.Rules = make([]Rule, 0, len(f.Rules))
	for i, fr := range f.Rules {
		interval, err := ParseTimeInterval(fr.TimeInterval)
		if err != nil {
			return Config{}, fmt.Errorf("rules[%d]: %w", i, err)
		}
		cfg.Rules = append(cfg.Rules, Rule{
			Name:        fr.Name,
			AccountID:   optFromPtr(fr.AccountID),
			ClientIP:    optFromPtr(fr.ClientIP),
			RequestType: optFromPtr(fr.RequestType),
			Allowed:     fr.Allowed,
			Interval:    interval,
		})
	}
	return cfg, nil
}

func optFromPtr(p *string) Opt {
	if p == nil {
		return None()
	}
	return Some(*p)
}

func detectFormat(path string) (ConfigFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown config extension %q", ErrInvalidConfig, ext)
	}
}
