package di

import (
	"testing"
)

type benchLeaf struct{}

type benchMid struct {
	Leaf *benchLeaf
}

type benchTop struct {
	Mid  *benchMid
	Leaf *benchLeaf
}

func benchRegistry(b *testing.B, leafOpts, midOpts, topOpts []RegistrationOption) *ComponentRegistry {
	b.Helper()
	leaf, err := Provide(func(ResolveContext) (*benchLeaf, error) {
		return &benchLeaf{}, nil
	}, leafOpts...)
	if err != nil {
		b.Fatal(err)
	}
	mid, err := Provide(func(ctx ResolveContext) (*benchMid, error) {
		l, err := Resolve[*benchLeaf](ctx)
		if err != nil {
			return nil, err
		}
		return &benchMid{Leaf: l}, nil
	}, midOpts...)
	if err != nil {
		b.Fatal(err)
	}
	top, err := Provide(func(ctx ResolveContext) (*benchTop, error) {
		m, err := Resolve[*benchMid](ctx)
		if err != nil {
			return nil, err
		}
		l, err := Resolve[*benchLeaf](ctx)
		if err != nil {
			return nil, err
		}
		return &benchTop{Mid: m, Leaf: l}, nil
	}, topOpts...)
	if err != nil {
		b.Fatal(err)
	}
	return MustNewComponentRegistry(leaf, mid, top)
}

// BenchmarkResolveSingleton 单例缓存命中
func BenchmarkResolveSingleton(b *testing.B) {
	root := NewRootScope(benchRegistry(b, nil, nil, []RegistrationOption{SingleInstance()}))
	MustResolve[*benchTop](root)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Resolve[*benchTop](root); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkResolveUnshared 每次构造完整的三层对象图
func BenchmarkResolveUnshared(b *testing.B) {
	root := NewRootScope(benchRegistry(b, nil, nil, nil))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Resolve[*benchTop](root); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkScopeLifecycle 模拟按请求创建作用域、解析、释放
func BenchmarkScopeLifecycle(b *testing.B) {
	root := NewRootScope(benchRegistry(b,
		[]RegistrationOption{SingleInstance()},
		[]RegistrationOption{InstancePerLifetimeScope()},
		nil,
	))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope, err := root.BeginLifetimeScope()
		if err != nil {
			b.Fatal(err)
		}
		if _, err := Resolve[*benchTop](scope); err != nil {
			b.Fatal(err)
		}
		if err := scope.Dispose(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolveSingletonParallel(b *testing.B) {
	root := NewRootScope(benchRegistry(b, nil, nil, []RegistrationOption{SingleInstance()}))

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := Resolve[*benchTop](root); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
