package di

import (
	"fmt"
)

// Resolve resolves an instance of type T from a scope or a resolve context.
func Resolve[T any](r Resolver, params ...Parameter) (T, error) {
	return resolveAs[T](r, ServiceOf[T](), params)
}

// ResolveNamed resolves an instance of type T with a specific name.
func ResolveNamed[T any](r Resolver, name string, params ...Parameter) (T, error) {
	return resolveAs[T](r, NamedServiceOf[T](name), params)
}

// MustResolve 解析类型 T，失败时 panic
func MustResolve[T any](r Resolver, params ...Parameter) T {
	v, err := Resolve[T](r, params...)
	if err != nil {
		panic(fmt.Sprintf("di: failed to resolve %v: %v", TypeOf[T](), err))
	}
	return v
}

// ResolveOptional 解析类型 T；未注册时返回零值与 false。
// 已释放的作用域或已结束的解析上下文仍然返回错误。
func ResolveOptional[T any](r Resolver, params ...Parameter) (T, bool, error) {
	var zero T
	if u, ok := r.(interface{ usable() error }); ok {
		if err := u.usable(); err != nil {
			return zero, false, err
		}
	}
	if !r.IsRegistered(ServiceOf[T]()) {
		return zero, false, nil
	}
	v, err := Resolve[T](r, params...)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func resolveAs[T any](r Resolver, svc Service, params []Parameter) (T, error) {
	var zero T

	val, err := r.Resolve(svc, params...)
	if err != nil {
		return zero, err
	}

	if v, ok := val.(T); ok {
		return v, nil
	}
	return zero, fmt.Errorf("di: resolved value is %T, expected %v", val, svc.Type)
}
