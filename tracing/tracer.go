package tracing

import (
	"context"
	"time"

	"github.com/gocrud/lifetime/di"
	"github.com/gocrud/lifetime/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName 创建 OpenTelemetry Tracer 时使用的名称
const InstrumentationName = "github.com/gocrud/lifetime/di"

// SpanTracer 把顶层解析与作用域释放记录为 OpenTelemetry span，实现 di.Tracer。
// span 在事件结束时按实际起止时间一次性生成，解析过程中不持有任何状态。
type SpanTracer struct {
	tracer trace.Tracer
	now    func() time.Time
}

var _ di.Tracer = (*SpanTracer)(nil)

// NewSpanTracer 基于 provider 创建 SpanTracer，provider 为 nil 时使用全局 TracerProvider
func NewSpanTracer(provider trace.TracerProvider) *SpanTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &SpanTracer{
		tracer: provider.Tracer(InstrumentationName),
		now:    time.Now,
	}
}

func (t *SpanTracer) ResolveStarted(*di.LifetimeScope, di.Service) {}

func (t *SpanTracer) ResolveFinished(scope *di.LifetimeScope, svc di.Service, elapsed time.Duration, err error) {
	end := t.now()
	_, span := t.tracer.Start(context.Background(), "di.Resolve",
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithAttributes(
			attribute.String("di.service", svc.String()),
			attribute.String("di.scope", scope.ID().String()),
			attribute.Bool("di.scope.root", scope.IsRoot()),
			attribute.String("di.outcome", metrics.Outcome(err)),
		),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

// InstanceActivated 激活次数由指标记录，这里不生成 span
func (t *SpanTracer) InstanceActivated(*di.LifetimeScope, *di.ComponentRegistration) {}

func (t *SpanTracer) SharedInstanceReused(*di.LifetimeScope, *di.ComponentRegistration) {}

func (t *SpanTracer) ScopeDisposed(scope *di.LifetimeScope, released int, err error) {
	_, span := t.tracer.Start(context.Background(), "di.Dispose",
		trace.WithAttributes(
			attribute.String("di.scope", scope.ID().String()),
			attribute.Bool("di.scope.root", scope.IsRoot()),
			attribute.Int("di.released", released),
		),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
	}
	span.End()
}
