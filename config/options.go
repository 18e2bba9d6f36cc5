package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocrud/lifetime/logging"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量覆盖的默认前缀
const DefaultEnvPrefix = "LIFETIME_"

// Options 解析引擎及其宿主的配置
//
// YAML 示例：
//
//	logging:
//	  level: debug
//	  color: false
//	metrics:
//	  enabled: true
//	  namespace: orders
//	tracing:
//	  enabled: true
//	hosting:
//	  shutdown_timeout: 10s
type Options struct {
	Logging LoggingOptions `yaml:"logging"`
	Metrics MetricsOptions `yaml:"metrics"`
	Tracing TracingOptions `yaml:"tracing"`
	Hosting HostingOptions `yaml:"hosting"`
}

// LoggingOptions 日志配置
type LoggingOptions struct {
	Level     string `yaml:"level"`
	Color     bool   `yaml:"color"`
	Timestamp bool   `yaml:"timestamp"`
}

// MetricsOptions Prometheus 指标配置
type MetricsOptions struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// TracingOptions OpenTelemetry 链路追踪配置
type TracingOptions struct {
	Enabled bool `yaml:"enabled"`
}

// HostingOptions 宿主配置
type HostingOptions struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default 返回默认配置
func Default() Options {
	return Options{
		Logging: LoggingOptions{
			Level:     "info",
			Color:     true,
			Timestamp: true,
		},
		Metrics: MetricsOptions{
			Namespace: "lifetime",
		},
		Hosting: HostingOptions{
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Parse 在默认配置之上解析 YAML 内容
func Parse(data []byte) (Options, error) {
	opts := Default()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("config: failed to parse YAML: %w", err)
	}
	return opts, opts.Validate()
}

// Load 读取 YAML 文件。optional 为 true 时文件不存在返回默认配置。
func Load(path string, optional bool) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return Default(), nil
		}
		return Options{}, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// ApplyEnvironment 用前缀匹配的环境变量覆盖配置。
// 节与键之间用双下划线分隔，例如 LIFETIME_LOGGING__LEVEL=debug、
// LIFETIME_HOSTING__SHUTDOWN_TIMEOUT=3s。
func (o *Options) ApplyEnvironment(prefix string) error {
	return o.applyEnv(prefix, os.Environ())
}

func (o *Options) applyEnv(prefix string, environ []string) error {
	overlay := make(map[string]any)

	for _, env := range environ {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}

		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, prefix)), "__")
		if len(path) != 2 || path[0] == "" || path[1] == "" {
			continue
		}

		section, ok := overlay[path[0]].(map[string]any)
		if !ok {
			section = make(map[string]any)
			overlay[path[0]] = section
		}
		section[path[1]] = scalar(value)
	}

	if len(overlay) == 0 {
		return nil
	}

	// 借助 YAML 往返把覆盖项合并进已有配置，未出现的字段保持原值
	data, err := yaml.Marshal(overlay)
	if err != nil {
		return fmt.Errorf("config: failed to encode environment overrides: %w", err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("config: invalid environment override: %w", err)
	}
	return o.Validate()
}

// scalar 按 YAML 规则推断环境变量值的类型（true -> bool, 10 -> int）
func scalar(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	switch v.(type) {
	case map[string]any, []any:
		return raw
	}
	return v
}

// Validate 校验配置
func (o Options) Validate() error {
	if _, err := logging.ParseLevel(o.Logging.Level); err != nil {
		return fmt.Errorf("config: logging.level: %w", err)
	}
	if o.Metrics.Enabled && o.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required when metrics are enabled")
	}
	if o.Hosting.ShutdownTimeout < 0 {
		return fmt.Errorf("config: hosting.shutdown_timeout must not be negative")
	}
	return nil
}

// NewLoggerFactory 按日志配置构建日志工厂，输出到 w（nil 表示标准输出）
func (o Options) NewLoggerFactory(w io.Writer) logging.LoggerFactory {
	level, err := logging.ParseLevel(o.Logging.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	return logging.NewLoggingBuilder().
		SetMinimumLevel(level).
		AddConsole(logging.ConsoleLoggerOptions{
			IncludeTimestamp: o.Logging.Timestamp,
			ColorOutput:      o.Logging.Color,
			Output:           w,
		}).
		Build()
}
