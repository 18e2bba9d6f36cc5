package di

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	Name string
	Next any
}

// cycleRegistry 构造长度为 n 的依赖环：c0 -> c1 -> ... -> c(n-1) -> c0
func cycleRegistry(t *testing.T, n int, opts ...RegistrationOption) *ComponentRegistry {
	t.Helper()
	regs := make([]*ComponentRegistration, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("c%d", i)
		next := NamedServiceOf[*node](fmt.Sprintf("c%d", (i+1)%n))
		reg, err := NewRegistration(func(ctx ResolveContext, _ Parameters) (any, error) {
			v, err := ctx.Resolve(next)
			if err != nil {
				return nil, err
			}
			return &node{Name: name, Next: v}, nil
		}, append([]RegistrationOption{AsNamed[*node](name)}, opts...)...)
		require.NoError(t, err)
		regs = append(regs, reg)
	}
	return MustNewComponentRegistry(regs...)
}

func TestCircularDependencyDetected(t *testing.T) {
	for _, n := range []int{1, 2, 3, 10, 50} {
		t.Run(fmt.Sprintf("depth=%d", n), func(t *testing.T) {
			root := NewRootScope(cycleRegistry(t, n))

			_, err := ResolveNamed[*node](root, "c0")
			require.Error(t, err)

			var top *DependencyResolutionError
			require.ErrorAs(t, err, &top)
			assert.Equal(t, NamedServiceOf[*node]("c0"), top.Service)

			var cycle *CircularDependencyError
			require.ErrorAs(t, err, &cycle)
			assert.Len(t, cycle.Chain, n+1)
			assert.Same(t, cycle.Chain[0], cycle.Chain[n])
			assert.Same(t, cycle, top.Cause())
		})
	}
}

func TestCircularDependencyWithSharedComponents(t *testing.T) {
	root := NewRootScope(cycleRegistry(t, 3, SingleInstance()))

	_, err := ResolveNamed[*node](root, "c1")
	var cycle *CircularDependencyError
	require.ErrorAs(t, err, &cycle)

	// 失败的激活不会写入共享表
	for _, reg := range root.Registry().Registrations() {
		_, ok := root.SharedInstance(reg.ID())
		assert.False(t, ok, reg.String())
	}
}

func TestCircularDependencyLeavesScopeUsable(t *testing.T) {
	regs := cycleRegistry(t, 2).Registrations()
	var seq atomic.Int64
	root := NewRootScope(MustNewComponentRegistry(append(regs, counterRegistration(t, &seq))...))

	_, err := ResolveNamed[*node](root, "c0")
	require.Error(t, err)

	a, err := Resolve[*counterA](root)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestNotRegistered(t *testing.T) {
	root := NewRootScope(MustNewComponentRegistry())

	for i := 0; i < 2; i++ {
		_, err := Resolve[*counterA](root)
		var missing *NotRegisteredError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, ServiceOf[*counterA](), missing.Service)
	}
}

func TestNotRegisteredDependency(t *testing.T) {
	reg, err := Provide(func(ctx ResolveContext) (*counterB, error) {
		a, err := Resolve[*counterA](ctx)
		if err != nil {
			return nil, fmt.Errorf("loading A: %w", err)
		}
		return &counterB{A: a}, nil
	})
	require.NoError(t, err)
	root := NewRootScope(MustNewComponentRegistry(reg))

	_, err = Resolve[*counterB](root)
	var top *DependencyResolutionError
	require.ErrorAs(t, err, &top)

	var missing *NotRegisteredError
	require.ErrorAs(t, top.Cause(), &missing)
	assert.Equal(t, ServiceOf[*counterA](), missing.Service)

	var activation *ActivationError
	require.ErrorAs(t, err, &activation)
	assert.Same(t, reg, activation.Component)
}

// 一个分支失败后，同一操作中的其他分支以及对失败组件的再次请求都不会被误判为循环
func TestFailedBranchDoesNotPoisonOperation(t *testing.T) {
	boom := errors.New("boom")
	failing, err := NewRegistration(func(ResolveContext, Parameters) (any, error) {
		return nil, boom
	}, AsNamed[*node]("failing"))
	require.NoError(t, err)

	var seq atomic.Int64
	regA := counterRegistration(t, &seq)

	var firstErr, secondErr error
	outer, err := Provide(func(ctx ResolveContext) (*counterB, error) {
		_, firstErr = ResolveNamed[*node](ctx, "failing")
		_, secondErr = ResolveNamed[*node](ctx, "failing")
		a, err := Resolve[*counterA](ctx)
		if err != nil {
			return nil, err
		}
		return &counterB{A: a}, nil
	})
	require.NoError(t, err)

	root := NewRootScope(MustNewComponentRegistry(failing, regA, outer))
	b, err := Resolve[*counterB](root)
	require.NoError(t, err)
	assert.NotNil(t, b.A)

	for _, e := range []error{firstErr, secondErr} {
		assert.ErrorIs(t, e, boom)
		var cycle *CircularDependencyError
		assert.False(t, errors.As(e, &cycle))
	}
}

func TestFailedSharedActivationIsNotCached(t *testing.T) {
	var attempts atomic.Int64
	reg, err := Provide(func(ResolveContext) (*counterA, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return &counterA{ID: attempts.Load()}, nil
	}, InstancePerLifetimeScope())
	require.NoError(t, err)
	root := NewRootScope(MustNewComponentRegistry(reg))

	_, err = Resolve[*counterA](root)
	require.Error(t, err)
	_, ok := root.SharedInstance(reg.ID())
	assert.False(t, ok)

	a1, err := Resolve[*counterA](root)
	require.NoError(t, err)
	a2, err := Resolve[*counterA](root)
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, int64(2), attempts.Load())
}

func TestActivatorPanicBecomesError(t *testing.T) {
	reg, err := NewRegistration(func(ResolveContext, Parameters) (any, error) {
		panic("constructor exploded")
	}, As[*counterA]())
	require.NoError(t, err)
	root := NewRootScope(MustNewComponentRegistry(reg))

	_, err = Resolve[*counterA](root)
	var activation *ActivationError
	require.ErrorAs(t, err, &activation)
	assert.Contains(t, activation.Error(), "constructor exploded")
}

func TestActivatorNilInstance(t *testing.T) {
	reg, err := NewRegistration(func(ResolveContext, Parameters) (any, error) {
		return nil, nil
	}, As[*counterA](), SingleInstance())
	require.NoError(t, err)
	root := NewRootScope(MustNewComponentRegistry(reg))

	_, err = Resolve[*counterA](root)
	assert.ErrorIs(t, err, ErrNilInstance)
	_, ok := root.SharedInstance(reg.ID())
	assert.False(t, ok)
}

func TestResolveContextEndsWithOperation(t *testing.T) {
	var seq atomic.Int64
	var captured ResolveContext
	holder, err := Provide(func(ctx ResolveContext) (*counterB, error) {
		captured = ctx
		return &counterB{}, nil
	})
	require.NoError(t, err)
	root := NewRootScope(MustNewComponentRegistry(holder, counterRegistration(t, &seq)))

	_, err = Resolve[*counterB](root)
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Same(t, root, captured.Scope())

	_, err = Resolve[*counterA](captured)
	assert.ErrorIs(t, err, ErrOperationEnded)
	assert.True(t, captured.IsRegistered(ServiceOf[*counterA]()))
}

type greeter struct {
	Greeting string
	Times    int
	Extra    string
}

func TestParametersReachTopLevelActivator(t *testing.T) {
	var depParams atomic.Int64
	dep, err := NewRegistration(func(_ ResolveContext, p Parameters) (any, error) {
		depParams.Store(int64(p.Len()))
		return &counterA{}, nil
	}, As[*counterA]())
	require.NoError(t, err)

	reg, err := NewRegistration(func(ctx ResolveContext, p Parameters) (any, error) {
		if _, err := ctx.Resolve(ServiceOf[*counterA]()); err != nil {
			return nil, err
		}
		greeting, _ := NamedAs[string](p, "greeting")
		times, _ := TypedAs[int](p)
		extra, _ := p.Named("extra")
		g := &greeter{Greeting: greeting, Times: times}
		if s, ok := extra.(string); ok {
			g.Extra = s
		}
		return g, nil
	}, As[*greeter]())
	require.NoError(t, err)

	root := NewRootScope(MustNewComponentRegistry(dep, reg))
	g, err := Resolve[*greeter](root,
		NamedParameter{Name: "greeting", Value: "hello"},
		TypedParam(3),
		ResolvedParameter{
			Predicate: func(name string, _ reflect.Type) bool { return name == "extra" },
			Value: func(ctx ResolveContext) any {
				return ctx.Scope().ID().String()
			},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, "hello", g.Greeting)
	assert.Equal(t, 3, g.Times)
	assert.Equal(t, root.ID().String(), g.Extra)
	assert.Equal(t, int64(0), depParams.Load(), "dependencies do not inherit caller parameters")
}

func TestParametersFirstMatchWins(t *testing.T) {
	p := newParameters(nil, []Parameter{
		NamedParameter{Name: "n", Value: 1},
		NamedParameter{Name: "n", Value: 2},
		TypedParam("first"),
		TypedParam("second"),
	})

	v, ok := p.Named("n")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	s, ok := TypedAs[string](p)
	require.True(t, ok)
	assert.Equal(t, "first", s)

	_, ok = TypedAs[float64](p)
	assert.False(t, ok)
	_, ok = NamedAs[string](p, "n")
	assert.False(t, ok, "type mismatch is not a match")
	_, ok = p.Named("")
	assert.False(t, ok)
}

type parent struct {
	Child *child
}

type child struct {
	Parent *parent
}

// 单例已发布后，在 Activated 中回填属性时重入是允许的
func TestActivatedPropertyInjectionOnSharedComponent(t *testing.T) {
	regParent, err := Provide(func(ResolveContext) (*parent, error) {
		return &parent{}, nil
	}, SingleInstance(), OnActivated(func(e ActivatedEvent) error {
		c, err := Resolve[*child](e.Context)
		if err != nil {
			return err
		}
		e.Instance().(*parent).Child = c
		return nil
	}))
	require.NoError(t, err)

	regChild, err := Provide(func(ctx ResolveContext) (*child, error) {
		p, err := Resolve[*parent](ctx)
		if err != nil {
			return nil, err
		}
		return &child{Parent: p}, nil
	})
	require.NoError(t, err)

	root := NewRootScope(MustNewComponentRegistry(regParent, regChild))
	p, err := Resolve[*parent](root)
	require.NoError(t, err)
	require.NotNil(t, p.Child)
	assert.Same(t, p, p.Child.Parent)
}

type dependsByCtor struct {
	Prop *dependsByProp
}

type dependsByProp struct {
	Ctor *dependsByCtor
}

// 构造函数依赖的一方先被请求：被依赖方的 Activated 推迟到整个请求完成后执行，
// 此时构造函数一方已经发布，回填得到的是同一个对象图
func TestActivatedPropertyInjectionAfterConstructorDependency(t *testing.T) {
	regCtor, err := Provide(func(ctx ResolveContext) (*dependsByCtor, error) {
		p, err := Resolve[*dependsByProp](ctx)
		if err != nil {
			return nil, err
		}
		return &dependsByCtor{Prop: p}, nil
	}, SingleInstance())
	require.NoError(t, err)

	regProp, err := Provide(func(ResolveContext) (*dependsByProp, error) {
		return &dependsByProp{}, nil
	}, SingleInstance(), OnActivated(func(e ActivatedEvent) error {
		c, err := Resolve[*dependsByCtor](e.Context)
		if err != nil {
			return err
		}
		e.Instance().(*dependsByProp).Ctor = c
		return nil
	}))
	require.NoError(t, err)

	for name, first := range map[string]func(*LifetimeScope) (any, error){
		"ctor first": func(s *LifetimeScope) (any, error) { return Resolve[*dependsByCtor](s) },
		"prop first": func(s *LifetimeScope) (any, error) { return Resolve[*dependsByProp](s) },
	} {
		t.Run(name, func(t *testing.T) {
			root := NewRootScope(MustNewComponentRegistry(regCtor, regProp))
			_, err := first(root)
			require.NoError(t, err)

			c := MustResolve[*dependsByCtor](root)
			p := MustResolve[*dependsByProp](root)
			assert.Same(t, p, c.Prop)
			assert.Same(t, c, p.Ctor)
		})
	}
}

// 推迟的 Activated 按发布顺序执行，在请求方拿到实例之前完成
func TestDeferredActivatedRunsInPublishOrder(t *testing.T) {
	var order []string
	regA, err := Provide(func(ResolveContext) (*counterA, error) {
		order = append(order, "build A")
		return &counterA{}, nil
	}, InstancePerLifetimeScope(), OnActivated(func(ActivatedEvent) error {
		order = append(order, "activated A")
		return nil
	}))
	require.NoError(t, err)

	regB, err := Provide(func(ctx ResolveContext) (*counterB, error) {
		a, err := Resolve[*counterA](ctx)
		if err != nil {
			return nil, err
		}
		order = append(order, "build B")
		return &counterB{A: a}, nil
	}, SingleInstance(), OnActivated(func(ActivatedEvent) error {
		order = append(order, "activated B")
		return nil
	}))
	require.NoError(t, err)

	root := NewRootScope(MustNewComponentRegistry(regA, regB))
	_, err = Resolve[*counterB](root)
	require.NoError(t, err)
	assert.Equal(t, []string{"build A", "build B", "activated A", "activated B"}, order)
}

func TestDeferredActivatedFailure(t *testing.T) {
	boom := errors.New("late wiring failed")
	reg, err := Provide(func(ResolveContext) (*counterA, error) {
		return &counterA{}, nil
	}, SingleInstance(), OnActivated(func(ActivatedEvent) error {
		return boom
	}))
	require.NoError(t, err)
	root := NewRootScope(MustNewComponentRegistry(reg))

	_, err = Resolve[*counterA](root)
	require.ErrorIs(t, err, boom)
	var observer *ObserverError
	require.ErrorAs(t, err, &observer)
	assert.Equal(t, PhaseActivated, observer.Phase)

	var top *DependencyResolutionError
	require.ErrorAs(t, err, &top)
	assert.Same(t, observer, top.Cause())
}

// 非共享组件没有可复用的实例，同样的回填会构成循环
func TestActivatedPropertyInjectionOnUnsharedComponentIsCircular(t *testing.T) {
	regParent, err := Provide(func(ResolveContext) (*parent, error) {
		return &parent{}, nil
	}, OnActivated(func(e ActivatedEvent) error {
		c, err := Resolve[*child](e.Context)
		if err != nil {
			return err
		}
		e.Instance().(*parent).Child = c
		return nil
	}))
	require.NoError(t, err)

	regChild, err := Provide(func(ctx ResolveContext) (*child, error) {
		p, err := Resolve[*parent](ctx)
		if err != nil {
			return nil, err
		}
		return &child{Parent: p}, nil
	})
	require.NoError(t, err)

	root := NewRootScope(MustNewComponentRegistry(regParent, regChild))
	_, err = Resolve[*parent](root)

	var cycle *CircularDependencyError
	require.ErrorAs(t, err, &cycle)
	var observer *ObserverError
	require.ErrorAs(t, err, &observer)
	assert.Equal(t, PhaseActivated, observer.Phase)
}
