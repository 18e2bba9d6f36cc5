package hosting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocrud/lifetime/di"
	"github.com/gocrud/lifetime/logging"
	"go.uber.org/multierr"
)

// ScopedTask 在一个新的子作用域中执行的周期任务
type ScopedTask func(ctx context.Context, scope *di.LifetimeScope) error

// TimedHostedService 定时托管服务。
// 每个周期从 parent 创建子作用域，在其中执行任务，结束后释放该作用域。
// 任务或释放失败只记录日志，不会停止服务。
type TimedHostedService struct {
	name     string
	interval time.Duration
	parent   *di.LifetimeScope
	task     ScopedTask
	logger   logging.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewTimedHostedService 创建定时托管服务
func NewTimedHostedService(name string, interval time.Duration, parent *di.LifetimeScope, task ScopedTask, logger logging.Logger) *TimedHostedService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &TimedHostedService{
		name:     name,
		interval: interval,
		parent:   parent,
		task:     task,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start 按间隔执行任务，阻塞到 Stop 被调用或 ctx 结束
func (s *TimedHostedService) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("hosting: timed service '%s' already started", s.name)
	}
	defer close(s.doneCh)

	s.logger.Info(fmt.Sprintf("TimedHostedService '%s' running with interval %v", s.name, s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error(fmt.Sprintf("TimedHostedService '%s' task failed", s.name),
					logging.Field{Key: "error", Value: err.Error()})
			}
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			s.logger.Debug(fmt.Sprintf("TimedHostedService '%s' context cancelled", s.name))
			return ctx.Err()
		}
	}
}

// RunOnce 在新的子作用域中执行一次任务，任务错误与作用域释放错误合并返回
func (s *TimedHostedService) RunOnce(ctx context.Context) error {
	scope, err := s.parent.BeginLifetimeScope()
	if err != nil {
		return err
	}

	err = s.runTask(ctx, scope)
	if derr := scope.Dispose(); derr != nil {
		err = multierr.Append(err, fmt.Errorf("hosting: disposing task scope: %w", derr))
	}
	return err
}

func (s *TimedHostedService) runTask(ctx context.Context, scope *di.LifetimeScope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hosting: task panicked: %v", r)
		}
	}()
	return s.task(ctx, scope)
}

// Stop 通知 Start 退出并等待其返回
func (s *TimedHostedService) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if !s.started.Load() {
		return nil
	}

	select {
	case <-s.doneCh:
		s.logger.Info(fmt.Sprintf("TimedHostedService '%s' stopped", s.name))
		return nil
	case <-ctx.Done():
		s.logger.Warn(fmt.Sprintf("TimedHostedService '%s' stop timeout", s.name))
		return ctx.Err()
	}
}
