package hosting

import (
	"io"

	"github.com/gocrud/lifetime/config"
	"github.com/gocrud/lifetime/di"
	"github.com/gocrud/lifetime/metrics"
	"github.com/gocrud/lifetime/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Settings 构建宿主所需的外部依赖
type Settings struct {
	Config   config.Options
	Output   io.Writer             // 日志输出，nil 表示标准输出
	Registry prometheus.Registerer // 指标注册表，nil 时即使启用指标也不收集
	Tracer   trace.TracerProvider  // 启用链路追踪时使用，nil 表示全局 TracerProvider
}

// Bootstrap 按配置创建日志、指标、链路追踪与根作用域，并返回宿主。
func Bootstrap(registry *di.ComponentRegistry, settings Settings, opts ...Option) (*Host, error) {
	if err := settings.Config.Validate(); err != nil {
		return nil, err
	}

	logger := settings.Config.NewLoggerFactory(settings.Output).CreateLogger("lifetime")

	scopeOpts := []di.ScopeOption{di.WithLogger(logger)}
	if settings.Config.Metrics.Enabled && settings.Registry != nil {
		collector := metrics.NewCollector(settings.Registry, settings.Config.Metrics.Namespace)
		scopeOpts = append(scopeOpts, di.WithTracer(collector))
	}
	if settings.Config.Tracing.Enabled {
		scopeOpts = append(scopeOpts, di.WithTracer(tracing.NewSpanTracer(settings.Tracer)))
	}

	root := di.NewRootScope(registry, scopeOpts...)

	base := []Option{
		WithLogger(logger),
		WithShutdownTimeout(settings.Config.Hosting.ShutdownTimeout),
	}
	return NewHost(root, append(base, opts...)...), nil
}
