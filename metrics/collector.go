package metrics

import (
	"errors"
	"time"

	"github.com/gocrud/lifetime/di"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector 以 Prometheus 指标记录解析引擎的事件，实现 di.Tracer。
type Collector struct {
	ResolvesTotal     *prometheus.CounterVec // 顶层解析次数，按结果（ok / 错误类型）区分
	ResolveDuration   prometheus.Histogram   // 顶层解析耗时
	ActivationsTotal  *prometheus.CounterVec // 组件激活次数，按共享策略区分
	SharedHitsTotal   prometheus.Counter     // 共享表命中次数
	ScopesDisposed    prometheus.Counter     // 已释放的作用域数
	InstancesReleased prometheus.Counter     // 作用域释放时释放的实例数
	ReleaseFailures   prometheus.Counter     // 释放失败的作用域数
}

var _ di.Tracer = (*Collector)(nil)

// NewCollector 创建并注册指标。reg 可以是全局注册表，也可以是测试用的独立注册表。
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		ResolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "di",
			Name:      "resolves_total",
			Help:      "Total number of top-level resolve operations by outcome",
		}, []string{"outcome"}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "di",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of top-level resolve operations",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		ActivationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "di",
			Name:      "activations_total",
			Help:      "Total number of component activations by sharing policy",
		}, []string{"sharing"}),
		SharedHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "di",
			Name:      "shared_instance_hits_total",
			Help:      "Total number of resolutions served from a shared-instance table",
		}),
		ScopesDisposed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "di",
			Name:      "scopes_disposed_total",
			Help:      "Total number of disposed lifetime scopes",
		}),
		InstancesReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "di",
			Name:      "instances_released_total",
			Help:      "Total number of instances released by scope disposal",
		}),
		ReleaseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "di",
			Name:      "scope_release_failures_total",
			Help:      "Total number of scope disposals that reported release errors",
		}),
	}

	reg.MustRegister(
		c.ResolvesTotal,
		c.ResolveDuration,
		c.ActivationsTotal,
		c.SharedHitsTotal,
		c.ScopesDisposed,
		c.InstancesReleased,
		c.ReleaseFailures,
	)
	return c
}

func (c *Collector) ResolveStarted(*di.LifetimeScope, di.Service) {}

func (c *Collector) ResolveFinished(_ *di.LifetimeScope, _ di.Service, elapsed time.Duration, err error) {
	c.ResolvesTotal.WithLabelValues(Outcome(err)).Inc()
	c.ResolveDuration.Observe(elapsed.Seconds())
}

func (c *Collector) InstanceActivated(_ *di.LifetimeScope, reg *di.ComponentRegistration) {
	c.ActivationsTotal.WithLabelValues(reg.Sharing().String()).Inc()
}

func (c *Collector) SharedInstanceReused(*di.LifetimeScope, *di.ComponentRegistration) {
	c.SharedHitsTotal.Inc()
}

func (c *Collector) ScopeDisposed(_ *di.LifetimeScope, released int, err error) {
	c.ScopesDisposed.Inc()
	c.InstancesReleased.Add(float64(released))
	if err != nil {
		c.ReleaseFailures.Inc()
	}
}

// Outcome 把解析错误归类为指标标签
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}

	var (
		notRegistered *di.NotRegisteredError
		circular      *di.CircularDependencyError
		observer      *di.ObserverError
		activation    *di.ActivationError
	)
	switch {
	case errors.Is(err, di.ErrScopeDisposed):
		return "scope_disposed"
	case errors.As(err, &circular):
		return "circular_dependency"
	case errors.As(err, &notRegistered):
		return "not_registered"
	case errors.As(err, &observer):
		return "observer_failed"
	case errors.As(err, &activation):
		return "activation_failed"
	default:
		return "error"
	}
}
