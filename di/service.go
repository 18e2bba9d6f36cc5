package di

import (
	"fmt"
	"reflect"
)

// Service 标识消费者想要解析的契约。
// 值语义：Type 与 Name 都相等的两个 Service 表示同一个契约，可直接作为 map 键。
type Service struct {
	Type reflect.Type
	Name string // 为空表示按类型解析
}

// TypedService 按类型创建 Service
func TypedService(typ reflect.Type) Service {
	return Service{Type: typ}
}

// NamedService 创建带名称的 Service，用于区分同一类型的多个实现
func NamedService(name string, typ reflect.Type) Service {
	return Service{Type: typ, Name: name}
}

// ServiceOf 返回类型 T 对应的 Service
//
// 示例：
//
//	svc := di.ServiceOf[Logger]()
//	v, err := scope.Resolve(svc)
func ServiceOf[T any]() Service {
	return Service{Type: TypeOf[T]()}
}

// NamedServiceOf 返回类型 T 与名称 name 对应的 Service
func NamedServiceOf[T any](name string) Service {
	return Service{Type: TypeOf[T](), Name: name}
}

// TypeOf 获取类型 T 的 reflect.Type，接口类型同样适用
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// String 返回 Service 的可读表示
func (s Service) String() string {
	typ := "<nil>"
	if s.Type != nil {
		typ = s.Type.String()
	}
	if s.Name == "" {
		return typ
	}
	return fmt.Sprintf("%s(name=%s)", typ, s.Name)
}
