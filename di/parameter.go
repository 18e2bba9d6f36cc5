package di

import "reflect"

// Parameter 是调用方在解析时提供给组件激活函数的附加参数。
type Parameter interface {
	// match 判断参数是否可满足给定名称或类型的需求，并返回取值
	match(name string, typ reflect.Type, ctx ResolveContext) (any, bool)
}

// NamedParameter 按名称提供参数
type NamedParameter struct {
	Name  string
	Value any
}

func (p NamedParameter) match(name string, _ reflect.Type, _ ResolveContext) (any, bool) {
	if name == "" || name != p.Name {
		return nil, false
	}
	return p.Value, true
}

// TypedParameter 按类型提供参数
type TypedParameter struct {
	Type  reflect.Type
	Value any
}

// TypedParam 是 TypedParameter 的泛型构造辅助函数
func TypedParam[T any](value T) TypedParameter {
	return TypedParameter{Type: TypeOf[T](), Value: value}
}

func (p TypedParameter) match(_ string, typ reflect.Type, _ ResolveContext) (any, bool) {
	if typ == nil || p.Type != typ {
		return nil, false
	}
	return p.Value, true
}

// ResolvedParameter 在被请求时才计算取值，可借助解析上下文获取其他服务。
type ResolvedParameter struct {
	Predicate func(name string, typ reflect.Type) bool
	Value     func(ctx ResolveContext) any
}

func (p ResolvedParameter) match(name string, typ reflect.Type, ctx ResolveContext) (any, bool) {
	if p.Predicate == nil || p.Value == nil || !p.Predicate(name, typ) {
		return nil, false
	}
	return p.Value(ctx), true
}

// Parameters 是一次解析请求携带的有序参数集合，先匹配者优先。
type Parameters struct {
	items []Parameter
	ctx   ResolveContext
}

func newParameters(ctx ResolveContext, items []Parameter) Parameters {
	return Parameters{items: items, ctx: ctx}
}

// Len 返回参数个数
func (p Parameters) Len() int {
	return len(p.items)
}

// Named 查找名称为 name 的参数
func (p Parameters) Named(name string) (any, bool) {
	for _, item := range p.items {
		if v, ok := item.match(name, nil, p.ctx); ok {
			return v, true
		}
	}
	return nil, false
}

// Typed 查找类型为 typ 的参数
func (p Parameters) Typed(typ reflect.Type) (any, bool) {
	for _, item := range p.items {
		if v, ok := item.match("", typ, p.ctx); ok {
			return v, true
		}
	}
	return nil, false
}

// TypedAs 以类型 T 查找参数并完成类型断言
func TypedAs[T any](p Parameters) (T, bool) {
	var zero T
	v, ok := p.Typed(TypeOf[T]())
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// NamedAs 以名称查找参数并断言为类型 T
func NamedAs[T any](p Parameters, name string) (T, bool) {
	var zero T
	v, ok := p.Named(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
