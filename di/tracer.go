package di

import (
	"time"

	"github.com/gocrud/lifetime/logging"
)

// Tracer 观察解析引擎的内部事件（日志、指标等）。
// 实现必须是并发安全的，且不应阻塞。
type Tracer interface {
	// ResolveStarted 顶层解析开始
	ResolveStarted(scope *LifetimeScope, svc Service)
	// ResolveFinished 顶层解析结束，err 为 nil 表示成功
	ResolveFinished(scope *LifetimeScope, svc Service, elapsed time.Duration, err error)
	// InstanceActivated 组件被激活（构造）了一次
	InstanceActivated(scope *LifetimeScope, reg *ComponentRegistration)
	// SharedInstanceReused 共享表命中，跳过了激活
	SharedInstanceReused(scope *LifetimeScope, reg *ComponentRegistration)
	// ScopeDisposed 作用域释放完成，released 为释放的实例数
	ScopeDisposed(scope *LifetimeScope, released int, err error)
}

type nopTracer struct{}

func (nopTracer) ResolveStarted(*LifetimeScope, Service) {}
func (nopTracer) ResolveFinished(*LifetimeScope, Service, time.Duration, error) {}
func (nopTracer) InstanceActivated(*LifetimeScope, *ComponentRegistration) {}
func (nopTracer) SharedInstanceReused(*LifetimeScope, *ComponentRegistration) {}
func (nopTracer) ScopeDisposed(*LifetimeScope, int, error) {}

// multiTracer 把事件依次转发给多个 Tracer
type multiTracer []Tracer

// Tracers 组合多个 Tracer，nil 会被忽略
func Tracers(tracers ...Tracer) Tracer {
	out := make(multiTracer, 0, len(tracers))
	for _, t := range tracers {
		if t != nil {
			out = append(out, t)
		}
	}
	switch len(out) {
	case 0:
		return nopTracer{}
	case 1:
		return out[0]
	}
	return out
}

func (m multiTracer) ResolveStarted(scope *LifetimeScope, svc Service) {
	for _, t := range m {
		t.ResolveStarted(scope, svc)
	}
}

func (m multiTracer) ResolveFinished(scope *LifetimeScope, svc Service, elapsed time.Duration, err error) {
	for _, t := range m {
		t.ResolveFinished(scope, svc, elapsed, err)
	}
}

func (m multiTracer) InstanceActivated(scope *LifetimeScope, reg *ComponentRegistration) {
	for _, t := range m {
		t.InstanceActivated(scope, reg)
	}
}

func (m multiTracer) SharedInstanceReused(scope *LifetimeScope, reg *ComponentRegistration) {
	for _, t := range m {
		t.SharedInstanceReused(scope, reg)
	}
}

func (m multiTracer) ScopeDisposed(scope *LifetimeScope, released int, err error) {
	for _, t := range m {
		t.ScopeDisposed(scope, released, err)
	}
}

// loggingTracer 以日志形式记录引擎事件
type loggingTracer struct {
	logger logging.Logger
}

// NewLoggingTracer 创建基于日志的 Tracer。
// 成功路径记录在 Trace/Debug 级别，失败记录在 Warn/Error 级别。
func NewLoggingTracer(logger logging.Logger) Tracer {
	if logger == nil {
		return nopTracer{}
	}
	return &loggingTracer{logger: logger.WithCategory("di")}
}

func (t *loggingTracer) ResolveStarted(scope *LifetimeScope, svc Service) {
	t.logger.Trace("resolve started",
		logging.Field{Key: "scope", Value: scope.ID()},
		logging.Field{Key: "service", Value: svc.String()})
}

func (t *loggingTracer) ResolveFinished(scope *LifetimeScope, svc Service, elapsed time.Duration, err error) {
	if err != nil {
		t.logger.Warn("resolve failed",
			logging.Field{Key: "scope", Value: scope.ID()},
			logging.Field{Key: "service", Value: svc.String()},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	t.logger.Trace("resolve finished",
		logging.Field{Key: "scope", Value: scope.ID()},
		logging.Field{Key: "service", Value: svc.String()},
		logging.Field{Key: "elapsed", Value: elapsed})
}

func (t *loggingTracer) InstanceActivated(scope *LifetimeScope, reg *ComponentRegistration) {
	t.logger.Debug("component activated",
		logging.Field{Key: "scope", Value: scope.ID()},
		logging.Field{Key: "component", Value: reg.String()})
}

func (t *loggingTracer) SharedInstanceReused(scope *LifetimeScope, reg *ComponentRegistration) {
	t.logger.Trace("shared instance reused",
		logging.Field{Key: "scope", Value: scope.ID()},
		logging.Field{Key: "component", Value: reg.String()})
}

func (t *loggingTracer) ScopeDisposed(scope *LifetimeScope, released int, err error) {
	if err != nil {
		t.logger.Error("scope disposed with errors",
			logging.Field{Key: "scope", Value: scope.ID()},
			logging.Field{Key: "released", Value: released},
			logging.Field{Key: "error", Value: err.Error()})
		return
	}
	t.logger.Debug("scope disposed",
		logging.Field{Key: "scope", Value: scope.ID()},
		logging.Field{Key: "released", Value: released})
}
