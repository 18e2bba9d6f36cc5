package di

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sharing 定义组件实例的共享策略
type Sharing int

const (
	// Unshared 每次解析都创建新实例，从不读写共享表
	Unshared Sharing = iota
	// SharedInScope 在拥有作用域内只创建一次实例
	SharedInScope
	// SharedSingleInstance 整个作用域树只创建一次实例，始终存放在根作用域
	SharedSingleInstance
)

// String 返回共享策略的字符串表示
func (s Sharing) String() string {
	switch s {
	case Unshared:
		return "Unshared"
	case SharedInScope:
		return "SharedInScope"
	case SharedSingleInstance:
		return "SingleInstance"
	default:
		return "Unknown"
	}
}

// Ownership 决定实例由祖先链中哪一个作用域持有（共享表与释放器）
type Ownership int

const (
	// OwnedBySelf 由发起顶层解析的作用域持有
	OwnedBySelf Ownership = iota
	// OwnedByRoot 由根作用域持有
	OwnedByRoot
)

// String 返回归属策略的字符串表示
func (o Ownership) String() string {
	switch o {
	case OwnedBySelf:
		return "Self"
	case OwnedByRoot:
		return "Root"
	default:
		return "Unknown"
	}
}

// Activator 组件的激活函数。
// ctx 把依赖解析请求路由回当前解析操作；params 为调用方提供的参数。
type Activator func(ctx ResolveContext, params Parameters) (any, error)

// ComponentRegistration 描述如何构造一个组件及其共享、归属策略。
// 注册信息在交给 ComponentRegistry 之后不可变。
type ComponentRegistration struct {
	id              uuid.UUID
	services        []Service
	sharing         Sharing
	ownership       Ownership
	activator       Activator
	externallyOwned bool
	isDefault       bool

	activating []ActivatingHandler
	activated  []ActivatedHandler
}

// RegistrationOption 配置组件注册
type RegistrationOption func(*ComponentRegistration)

// NewRegistration 使用激活函数创建组件注册。
// 默认策略为 Unshared + OwnedBySelf。
func NewRegistration(activator Activator, opts ...RegistrationOption) (*ComponentRegistration, error) {
	if activator == nil {
		return nil, fmt.Errorf("di: activator is required")
	}

	reg := &ComponentRegistration{
		id:        uuid.New(),
		sharing:   Unshared,
		ownership: OwnedBySelf,
		activator: activator,
	}

	for _, opt := range opts {
		opt(reg)
	}

	if len(reg.services) == 0 {
		return nil, fmt.Errorf("di: registration %s exposes no services", reg.id)
	}

	return reg, nil
}

// RegisterInstance 把已存在的实例注册为单例。
// 实例不归容器所有，作用域释放时不会调用其 Dispose/Close。
func RegisterInstance(instance any, opts ...RegistrationOption) (*ComponentRegistration, error) {
	if instance == nil {
		return nil, fmt.Errorf("di: instance is required")
	}
	activator := func(ResolveContext, Parameters) (any, error) {
		return instance, nil
	}
	base := []RegistrationOption{SingleInstance(), ExternallyOwned()}
	return NewRegistration(activator, append(base, opts...)...)
}

// Provide 以类型化工厂创建注册，服务类型默认为 T。
//
// 示例：
//
//	reg, _ := di.Provide(func(ctx di.ResolveContext) (*Repo, error) {
//		db, err := di.Resolve[*DB](ctx)
//		if err != nil {
//			return nil, err
//		}
//		return &Repo{DB: db}, nil
//	}, di.InstancePerLifetimeScope())
func Provide[T any](factory func(ctx ResolveContext) (T, error), opts ...RegistrationOption) (*ComponentRegistration, error) {
	if factory == nil {
		return nil, fmt.Errorf("di: factory is required")
	}
	activator := func(ctx ResolveContext, _ Parameters) (any, error) {
		return factory(ctx)
	}
	base := []RegistrationOption{As[T]()}
	return NewRegistration(activator, append(base, opts...)...)
}

// ID 返回注册的唯一标识
func (r *ComponentRegistration) ID() uuid.UUID {
	return r.id
}

// Services 返回该注册可满足的服务
func (r *ComponentRegistration) Services() []Service {
	out := make([]Service, len(r.services))
	copy(out, r.services)
	return out
}

// Sharing 返回共享策略
func (r *ComponentRegistration) Sharing() Sharing {
	return r.sharing
}

// Ownership 返回归属策略
func (r *ComponentRegistration) Ownership() Ownership {
	return r.ownership
}

// ExternallyOwned 报告实例的释放是否由外部负责
func (r *ComponentRegistration) ExternallyOwned() bool {
	return r.externallyOwned
}

// String 返回注册的可读表示，用于错误信息和日志
func (r *ComponentRegistration) String() string {
	names := make([]string, len(r.services))
	for i, s := range r.services {
		names[i] = s.String()
	}
	return fmt.Sprintf("%s [%s, %s]", strings.Join(names, ","), r.sharing, r.ownership)
}

// isShared 报告实例是否需要进入共享表
func (r *ComponentRegistration) isShared() bool {
	return r.sharing != Unshared
}

// ownedByRoot 单例总是归根作用域所有
func (r *ComponentRegistration) ownedByRoot() bool {
	return r.ownership == OwnedByRoot || r.sharing == SharedSingleInstance
}

// As 声明注册提供服务 T
func As[T any]() RegistrationOption {
	return AsService(ServiceOf[T]())
}

// AsNamed 声明注册提供名称为 name 的服务 T
func AsNamed[T any](name string) RegistrationOption {
	return AsService(NamedServiceOf[T](name))
}

// AsService 声明注册提供给定服务，重复声明会被忽略
func AsService(svc Service) RegistrationOption {
	return func(r *ComponentRegistration) {
		for _, existing := range r.services {
			if existing == svc {
				return
			}
		}
		r.services = append(r.services, svc)
	}
}

// WithSharing 设置共享策略
func WithSharing(sharing Sharing) RegistrationOption {
	return func(r *ComponentRegistration) {
		r.sharing = sharing
	}
}

// SingleInstance 设置为单例（根作用域共享）。
// 单例的依赖在根作用域中解析并登记释放，即使构造由子作用域触发。
func SingleInstance() RegistrationOption {
	return WithSharing(SharedSingleInstance)
}

// InstancePerLifetimeScope 设置为作用域内共享
func InstancePerLifetimeScope() RegistrationOption {
	return WithSharing(SharedInScope)
}

// InstancePerDependency 设置为每次解析创建新实例（默认）
func InstancePerDependency() RegistrationOption {
	return WithSharing(Unshared)
}

// OwnedByRootScope 让实例由根作用域持有
func OwnedByRootScope() RegistrationOption {
	return func(r *ComponentRegistration) {
		r.ownership = OwnedByRoot
	}
}

// ExternallyOwned 禁止作用域释放该组件的实例
func ExternallyOwned() RegistrationOption {
	return func(r *ComponentRegistration) {
		r.externallyOwned = true
	}
}

// AsDefault 当同一服务有多个注册时，优先选择此注册
func AsDefault() RegistrationOption {
	return func(r *ComponentRegistration) {
		r.isDefault = true
	}
}

// OnActivating 追加 Activating 观察者，按追加顺序调用
func OnActivating(handler ActivatingHandler) RegistrationOption {
	return func(r *ComponentRegistration) {
		if handler != nil {
			r.activating = append(r.activating, handler)
		}
	}
}

// OnActivated 追加 Activated 观察者，按追加顺序调用
func OnActivated(handler ActivatedHandler) RegistrationOption {
	return func(r *ComponentRegistration) {
		if handler != nil {
			r.activated = append(r.activated, handler)
		}
	}
}
