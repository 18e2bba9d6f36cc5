package di

import (
	"reflect"
	"sync/atomic"

	"github.com/gocrud/lifetime/logging"
	"github.com/google/uuid"
)

// Resolver 可以解析服务的对象：作用域本身，以及激活期间的解析上下文。
type Resolver interface {
	Resolve(svc Service, params ...Parameter) (any, error)
	IsRegistered(svc Service) bool
}

// ResolveContext 是传给激活函数与观察者的解析上下文。
// 通过它解析的依赖与当前请求共享同一个解析操作（同一个激活栈），
// 因此跨分支的构造期循环依赖可以被检测出来。
// 它只在所属的解析操作期间有效，且不能被多个 goroutine 并发使用。
type ResolveContext interface {
	Resolver
	// Scope 返回当前激活所在的作用域：通常是发起顶层解析的作用域，
	// 激活归根作用域所有的组件时为根作用域
	Scope() *LifetimeScope
}

// resolveOperation 对应一次顶层解析请求，用完即弃。
type resolveOperation struct {
	scope    *LifetimeScope
	registry *ComponentRegistry

	// current 是依赖解析所在的作用域。激活根作用域所有的组件期间切换为根作用域，
	// 这样单例的依赖不会落在寿命更短的子作用域里。
	current *LifetimeScope

	// 激活栈：当前正在激活的注册，用于检测构造期循环依赖
	stack  []*ComponentRegistration
	onPath map[uuid.UUID]struct{}

	// 共享组件的 Activated 观察者推迟到顶层激活完成后执行
	pending []pendingActivation

	ended atomic.Bool
}

type pendingActivation struct {
	reg      *ComponentRegistration
	params   Parameters
	instance any
	scope    *LifetimeScope
}

func newResolveOperation(scope *LifetimeScope) *resolveOperation {
	return &resolveOperation{
		scope:    scope,
		registry: scope.registry,
		current:  scope,
		stack:    make([]*ComponentRegistration, 0, 8),
		onPath:   make(map[uuid.UUID]struct{}, 8),
	}
}

// execute 执行顶层解析，任何失败都以 *DependencyResolutionError 返回
func (op *resolveOperation) execute(svc Service, params []Parameter) (any, error) {
	defer op.ended.Store(true)

	instance, err := op.resolve(svc, params)
	if err == nil {
		err = op.complete()
	}
	if err != nil {
		return nil, &DependencyResolutionError{Service: svc, Err: err}
	}
	return instance, nil
}

// complete 按发布顺序执行推迟的 Activated 观察者。
// 此时激活栈已清空，观察者回填的依赖可以直接取到已发布的共享实例。
// 观察者中新激活的共享组件会追加到队列末尾。
func (op *resolveOperation) complete() error {
	for len(op.pending) > 0 {
		next := op.pending[0]
		op.pending = op.pending[1:]

		prev := op.current
		op.current = next.scope
		err := fireActivated(op, next.reg, next.params, next.instance)
		op.current = prev
		if err != nil {
			op.pending = nil
			return err
		}
	}
	return nil
}

// Scope 实现 ResolveContext
func (op *resolveOperation) Scope() *LifetimeScope {
	return op.current
}

func (op *resolveOperation) usable() error {
	if op.ended.Load() {
		return ErrOperationEnded
	}
	return nil
}

// Resolve 实现 Resolver：依赖在同一个操作内递归解析
func (op *resolveOperation) Resolve(svc Service, params ...Parameter) (any, error) {
	if err := op.usable(); err != nil {
		return nil, err
	}
	return op.resolve(svc, params)
}

// IsRegistered 实现 Resolver
func (op *resolveOperation) IsRegistered(svc Service) bool {
	return op.registry.IsRegistered(svc)
}

func (op *resolveOperation) resolve(svc Service, params []Parameter) (any, error) {
	reg, ok := op.registry.Default(svc)
	if !ok {
		return nil, &NotRegisteredError{Service: svc}
	}
	return op.resolveComponent(reg, params)
}

// resolveComponent 解析单个组件：检测循环、查共享表、激活、触发事件、登记释放与共享。
func (op *resolveOperation) resolveComponent(reg *ComponentRegistration, params []Parameter) (any, error) {
	owner := op.owningScope(reg)

	if _, busy := op.onPath[reg.id]; busy {
		// 实例已存在时的重入只是对象图中的环（例如 Activated 中回填属性），不是构造期循环
		if reg.isShared() {
			if instance, ok := owner.SharedInstance(reg.id); ok {
				return instance, nil
			}
		}
		chain := make([]*ComponentRegistration, 0, len(op.stack)+1)
		chain = append(chain, op.stack...)
		chain = append(chain, reg)
		return nil, &CircularDependencyError{Chain: chain}
	}

	op.push(reg)
	defer op.pop(reg)

	if reg.isShared() {
		if instance, ok := owner.SharedInstance(reg.id); ok {
			op.scope.tracer.SharedInstanceReused(op.scope, reg)
			return instance, nil
		}
	}

	if owner != op.current {
		prev := op.current
		op.current = owner
		defer func() { op.current = prev }()
	}

	p := newParameters(op, params)

	instance, err := op.activate(reg, p)
	if err != nil {
		return nil, &ActivationError{Component: reg, Err: err}
	}
	op.scope.tracer.InstanceActivated(op.scope, reg)

	instance, err = fireActivating(op, reg, p, instance)
	if err != nil {
		return nil, err
	}

	track := !reg.externallyOwned
	if reg.isShared() {
		winner, stored, err := owner.publishShared(reg, instance, track)
		if err != nil {
			return nil, err
		}
		if !stored {
			op.discard(reg, instance, winner, track)
			return winner, nil
		}
		if len(reg.activated) > 0 {
			op.pending = append(op.pending, pendingActivation{reg: reg, params: p, instance: instance, scope: owner})
			return instance, nil
		}
	} else if track {
		if err := owner.track(instance); err != nil {
			return nil, err
		}
	}

	if err := fireActivated(op, reg, p, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// owningScope 按归属策略选择持有实例的作用域。
// Self 组件归当前激活所在的作用域；在根作用域所有的组件内部即为根作用域。
func (op *resolveOperation) owningScope(reg *ComponentRegistration) *LifetimeScope {
	if reg.ownedByRoot() {
		return op.scope.root
	}
	return op.current
}

// activate 调用激活函数，panic 转换为错误
func (op *resolveOperation) activate(reg *ComponentRegistration, params Parameters) (instance any, err error) {
	defer func() {
		if r := recover(); r != nil {
			instance, err = nil, panicError(r)
		}
	}()

	instance, err = reg.activator(op, params)
	if err == nil && instance == nil {
		err = ErrNilInstance
	}
	return instance, err
}

// discard 释放并发竞争中落败的共享实例。
// 落败方拿到的可能正是胜出方发布的同一个对象（池化对象、代理缓存），此时不能释放。
func (op *resolveOperation) discard(reg *ComponentRegistration, instance, winner any, track bool) {
	op.scope.logger.Debug("discarding concurrently activated shared instance",
		logging.Field{Key: "component", Value: reg.String()})

	if !track || sameInstance(instance, winner) {
		return
	}
	if d, ok := asDisposable(instance); ok {
		if err := release(disposerEntry{instance: instance, release: d}); err != nil {
			op.scope.logger.Warn("failed to release discarded instance",
				logging.Field{Key: "component", Value: reg.String()},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
}

// sameInstance 比较两个实例是否为同一对象，不可比较的动态类型视为不同
func sameInstance(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() || va.Type() != vb.Type() || !va.Comparable() {
		return false
	}
	return a == b
}

func (op *resolveOperation) push(reg *ComponentRegistration) {
	op.stack = append(op.stack, reg)
	op.onPath[reg.id] = struct{}{}
}

// pop 出栈，无论激活成功与否都会执行
func (op *resolveOperation) pop(reg *ComponentRegistration) {
	op.stack = op.stack[:len(op.stack)-1]
	delete(op.onPath, reg.id)
}
