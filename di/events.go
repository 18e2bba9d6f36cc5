package di

// ActivatingEvent 在实例构造完成、尚未交给请求方之前触发。
// 观察者可以调用 ReplaceInstance 替换实例（例如包装为代理）。
type ActivatingEvent struct {
	Context    ResolveContext
	Component  *ComponentRegistration
	Parameters Parameters

	instance any
}

// Instance 返回当前实例（可能已被前面的观察者替换）
func (e *ActivatingEvent) Instance() any {
	return e.instance
}

// ReplaceInstance 替换将要返回给请求方的实例
func (e *ActivatingEvent) ReplaceInstance(instance any) {
	e.instance = instance
}

// ActivatedEvent 在实例登记到释放器与共享表之后触发，实例此后不可再替换。
type ActivatedEvent struct {
	Context    ResolveContext
	Component  *ComponentRegistration
	Parameters Parameters

	instance any
}

// Instance 返回最终实例
func (e ActivatedEvent) Instance() any {
	return e.instance
}

// ActivatingHandler Activating 观察者
type ActivatingHandler func(e *ActivatingEvent) error

// ActivatedHandler Activated 观察者
type ActivatedHandler func(e ActivatedEvent) error

// fireActivating 按注册顺序调用 Activating 观察者，返回（可能被替换的）实例。
// 某个观察者失败时立即返回，之前观察者的副作用不会回滚。
func fireActivating(ctx ResolveContext, reg *ComponentRegistration, params Parameters, instance any) (any, error) {
	if len(reg.activating) == 0 {
		return instance, nil
	}

	e := &ActivatingEvent{
		Context:    ctx,
		Component:  reg,
		Parameters: params,
		instance:   instance,
	}
	for i, handler := range reg.activating {
		if err := callObserver(func() error { return handler(e) }); err != nil {
			return nil, &ObserverError{Component: reg, Phase: PhaseActivating, Index: i, Err: err}
		}
	}

	if e.instance == nil {
		return nil, &ObserverError{Component: reg, Phase: PhaseActivating, Index: len(reg.activating) - 1, Err: ErrNilInstance}
	}
	return e.instance, nil
}

// fireActivated 按注册顺序调用 Activated 观察者
func fireActivated(ctx ResolveContext, reg *ComponentRegistration, params Parameters, instance any) error {
	if len(reg.activated) == 0 {
		return nil
	}

	e := ActivatedEvent{
		Context:    ctx,
		Component:  reg,
		Parameters: params,
		instance:   instance,
	}
	for i, handler := range reg.activated {
		if err := callObserver(func() error { return handler(e) }); err != nil {
			return &ObserverError{Component: reg, Phase: PhaseActivated, Index: i, Err: err}
		}
	}
	return nil
}

func callObserver(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return fn()
}
