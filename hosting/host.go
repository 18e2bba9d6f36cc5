package hosting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocrud/lifetime/di"
	"github.com/gocrud/lifetime/logging"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// HostedService 托管服务接口（类似于 .NET Core IHostedService）
type HostedService interface {
	// Start 启动服务。该方法应阻塞执行，直到 context 被取消或发生错误。
	Start(ctx context.Context) error

	// Stop 执行优雅关闭逻辑，必须支持通过 ctx 进行超时控制。
	Stop(ctx context.Context) error
}

// Host 持有根作用域，从中解析托管服务并管理它们的启动与停止。
// 停止完成后根作用域被释放，单例按构造的逆序释放。
type Host struct {
	root            *di.LifetimeScope
	services        []di.Service
	logger          logging.Logger
	shutdownTimeout time.Duration

	mu      sync.Mutex
	running bool
}

// Option 配置 Host
type Option func(*Host)

// WithLogger 设置日志记录器
func WithLogger(logger logging.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithShutdownTimeout 设置停止阶段的超时时间
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.shutdownTimeout = d
	}
}

// WithHostedService 声明一个需要托管的服务，解析结果必须实现 HostedService
func WithHostedService(svc di.Service) Option {
	return func(h *Host) {
		h.services = append(h.services, svc)
	}
}

// Hosted 以类型 T 声明托管服务
func Hosted[T any]() Option {
	return WithHostedService(di.ServiceOf[T]())
}

// NewHost 基于根作用域创建宿主
func NewHost(root *di.LifetimeScope, opts ...Option) *Host {
	h := &Host{
		root:            root.Root(),
		logger:          logging.Nop(),
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.WithCategory("hosting")
	return h
}

// Root 返回宿主的根作用域
func (h *Host) Root() *di.LifetimeScope {
	return h.root
}

// Run 解析并启动所有托管服务，阻塞到 ctx 被取消或任一服务失败，
// 然后按逆序停止服务并释放根作用域。
func (h *Host) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return fmt.Errorf("hosting: host is already running")
	}
	h.running = true
	h.mu.Unlock()

	services, err := h.resolveServices()
	if err != nil {
		return multierr.Append(err, h.root.Dispose())
	}

	h.logger.Info(fmt.Sprintf("Starting %d hosted services", len(services)))

	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			err := svc.Start(gctx)
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			h.logger.Error(fmt.Sprintf("Hosted service %d failed", i+1),
				logging.Field{Key: "service", Value: h.services[i].String()},
				logging.Field{Key: "error", Value: err.Error()})
			return fmt.Errorf("hosting: service %s: %w", h.services[i], err)
		})
	}
	runErr := g.Wait()

	return multierr.Append(runErr, h.stop(services))
}

// resolveServices 从根作用域解析托管服务
func (h *Host) resolveServices() ([]HostedService, error) {
	services := make([]HostedService, 0, len(h.services))
	for _, svc := range h.services {
		instance, err := h.root.Resolve(svc)
		if err != nil {
			return nil, fmt.Errorf("hosting: resolving %s: %w", svc, err)
		}
		hosted, ok := instance.(HostedService)
		if !ok {
			return nil, fmt.Errorf("hosting: %s resolved to %T which is not a HostedService", svc, instance)
		}
		services = append(services, hosted)
	}
	return services, nil
}

// stop 逆序停止服务，然后释放根作用域；失败不会中断后续步骤
func (h *Host) stop(services []HostedService) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	h.logger.Info(fmt.Sprintf("Stopping %d hosted services", len(services)))

	var errs error
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(ctx); err != nil {
			h.logger.Error(fmt.Sprintf("Failed to stop hosted service %d", i+1),
				logging.Field{Key: "error", Value: err.Error()})
			errs = multierr.Append(errs, fmt.Errorf("hosting: stopping %s: %w", h.services[i], err))
		}
	}

	if err := h.root.Dispose(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("hosting: disposing root scope: %w", err))
	}

	h.logger.Info("All hosted services stopped")
	return errs
}
