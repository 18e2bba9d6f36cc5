package di

import (
	"sync"
	"time"

	"github.com/gocrud/lifetime/logging"
	"github.com/google/uuid"
)

// LifetimeScope 是作用域树中的一个节点。
// 它持有自己的释放器和共享实例表；parent 与 root 只是用于查找和归属路由的反向引用，
// 作用域不拥有其祖先，也不负责释放其子作用域。
type LifetimeScope struct {
	id       uuid.UUID
	registry *ComponentRegistry
	parent   *LifetimeScope
	root     *LifetimeScope // 根作用域快捷引用，单例查找无需遍历祖先链
	disposer *Disposer
	logger   logging.Logger
	tracer   Tracer

	mu        sync.Mutex
	idle      *sync.Cond // active 归零或释放完成时广播
	shared    map[uuid.UUID]any
	active    int // 正在使用本作用域的解析操作数
	disposing bool
	disposed  bool
}

// ScopeOption 配置根作用域
type ScopeOption func(*scopeOptions)

type scopeOptions struct {
	logger  logging.Logger
	tracers []Tracer
}

// WithLogger 设置作用域树使用的日志记录器，同时启用基于日志的 Tracer
func WithLogger(logger logging.Logger) ScopeOption {
	return func(o *scopeOptions) {
		o.logger = logger
	}
}

// WithTracer 追加一个 Tracer（例如指标收集器）
func WithTracer(tracer Tracer) ScopeOption {
	return func(o *scopeOptions) {
		o.tracers = append(o.tracers, tracer)
	}
}

// NewRootScope 基于只读注册目录创建根作用域。
// 子作用域继承根作用域的日志与 Tracer 配置。
func NewRootScope(registry *ComponentRegistry, opts ...ScopeOption) *LifetimeScope {
	if registry == nil {
		panic("di: component registry is required")
	}

	options := &scopeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.logger
	tracers := options.tracers
	if logger == nil {
		logger = logging.Nop()
	} else {
		tracers = append([]Tracer{NewLoggingTracer(logger)}, tracers...)
	}

	s := newScope(registry, nil, logger.WithCategory("di.scope"), Tracers(tracers...))
	s.root = s
	return s
}

func newScope(registry *ComponentRegistry, parent *LifetimeScope, logger logging.Logger, tracer Tracer) *LifetimeScope {
	s := &LifetimeScope{
		id:       uuid.New(),
		registry: registry,
		parent:   parent,
		disposer: NewDisposer(),
		logger:   logger,
		tracer:   tracer,
		shared:   make(map[uuid.UUID]any),
	}
	s.idle = sync.NewCond(&s.mu)
	if parent != nil {
		s.root = parent.root
	}
	return s
}

// ID 返回作用域标识
func (s *LifetimeScope) ID() uuid.UUID {
	return s.id
}

// Parent 返回父作用域，根作用域返回 nil
func (s *LifetimeScope) Parent() *LifetimeScope {
	return s.parent
}

// Root 返回根作用域
func (s *LifetimeScope) Root() *LifetimeScope {
	return s.root
}

// IsRoot 报告是否为根作用域
func (s *LifetimeScope) IsRoot() bool {
	return s.parent == nil
}

// Registry 返回共享的注册目录
func (s *LifetimeScope) Registry() *ComponentRegistry {
	return s.registry
}

// Disposer 返回作用域的释放器，调用方可以把自己的资源交给作用域统一释放
func (s *LifetimeScope) Disposer() *Disposer {
	return s.disposer
}

// BeginLifetimeScope 创建子作用域，其根与当前作用域相同
func (s *LifetimeScope) BeginLifetimeScope() (*LifetimeScope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposing {
		return nil, ErrScopeDisposed
	}

	child := newScope(s.registry, s, s.logger, s.tracer)
	s.logger.Debug("lifetime scope started",
		logging.Field{Key: "scope", Value: child.id},
		logging.Field{Key: "parent", Value: s.id})
	return child, nil
}

// Resolve 在当前作用域中解析服务。
// 每次调用都会创建一个新的解析操作；失败时返回 *DependencyResolutionError，
// 作用域已释放时返回 ErrScopeDisposed。
func (s *LifetimeScope) Resolve(svc Service, params ...Parameter) (any, error) {
	start := time.Now()
	s.tracer.ResolveStarted(s, svc)

	if err := s.enter(); err != nil {
		s.tracer.ResolveFinished(s, svc, time.Since(start), err)
		return nil, err
	}
	defer s.exit()

	if s.root != s {
		if err := s.root.enter(); err != nil {
			s.tracer.ResolveFinished(s, svc, time.Since(start), err)
			return nil, err
		}
		defer s.root.exit()
	}

	op := newResolveOperation(s)
	instance, err := op.execute(svc, params)

	s.tracer.ResolveFinished(s, svc, time.Since(start), err)
	return instance, err
}

// TryResolve 与 Resolve 相同，但服务未注册时返回 (nil, false, nil)。
// 作用域已释放时无论服务是否注册都返回 ErrScopeDisposed。
func (s *LifetimeScope) TryResolve(svc Service, params ...Parameter) (any, bool, error) {
	if err := s.usable(); err != nil {
		return nil, false, err
	}
	if !s.registry.IsRegistered(svc) {
		return nil, false, nil
	}
	instance, err := s.Resolve(svc, params...)
	if err != nil {
		return nil, false, err
	}
	return instance, true, nil
}

// IsRegistered 报告服务是否已注册
func (s *LifetimeScope) IsRegistered(svc Service) bool {
	return s.registry.IsRegistered(svc)
}

// SharedInstance 查找本作用域中注册 id 对应的共享实例
func (s *LifetimeScope) SharedInstance(id uuid.UUID) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.shared[id]
	return instance, ok
}

// AddSharedInstance 把实例写入共享表。
// 同一 id 重复写入返回 *DuplicateSharedInstanceError，不会覆盖已有实例。
func (s *LifetimeScope) AddSharedInstance(id uuid.UUID, instance any) error {
	if instance == nil {
		return ErrNilInstance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposing {
		return ErrScopeDisposed
	}
	if _, exists := s.shared[id]; exists {
		return &DuplicateSharedInstanceError{ID: id}
	}
	s.shared[id] = instance
	return nil
}

// publishShared 在同一把锁内完成：检查共享表、登记释放器、写入共享表。
// 若其他解析操作已先写入，返回已有实例且 stored 为 false。
func (s *LifetimeScope) publishShared(reg *ComponentRegistration, instance any, track bool) (winner any, stored bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.shared[reg.id]; ok {
		return existing, false, nil
	}
	if track {
		if _, err := s.disposer.Add(instance); err != nil {
			return nil, false, err
		}
	}
	s.shared[reg.id] = instance
	return instance, true, nil
}

// track 把非共享实例登记到释放器
func (s *LifetimeScope) track(instance any) error {
	_, err := s.disposer.Add(instance)
	return err
}

// Dispose 倒序释放本作用域持有的实例，然后清空共享表。
// 会等待所有已进入本作用域的解析操作结束；重复调用是空操作。
// 不得在本作用域的激活函数或观察者内部调用。
func (s *LifetimeScope) Dispose() error {
	s.mu.Lock()
	if s.disposing {
		for !s.disposed {
			s.idle.Wait()
		}
		s.mu.Unlock()
		return nil
	}
	s.disposing = true
	for s.active > 0 {
		s.idle.Wait()
	}
	s.mu.Unlock()

	released, err := s.disposer.DisposeAll()

	s.mu.Lock()
	s.shared = make(map[uuid.UUID]any)
	s.disposed = true
	s.idle.Broadcast()
	s.mu.Unlock()

	s.tracer.ScopeDisposed(s, released, err)
	return err
}

// IsDisposed 报告作用域是否已开始或完成释放
func (s *LifetimeScope) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposing
}

// usable 检查本作用域及根作用域是否仍可接受解析请求
func (s *LifetimeScope) usable() error {
	if s.IsDisposed() || s.root.IsDisposed() {
		return ErrScopeDisposed
	}
	return nil
}

func (s *LifetimeScope) enter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposing {
		return ErrScopeDisposed
	}
	s.active++
	return nil
}

func (s *LifetimeScope) exit() {
	s.mu.Lock()
	s.active--
	if s.active == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}
