package main

import (
	"fmt"

	"github.com/gocrud/lifetime/di"
	"github.com/gocrud/lifetime/logging"
)

// ===== 接口定义 =====

type Logger interface {
	Log(msg string)
}

type RequestContext interface {
	GetRequestID() string
	SetValue(key string, value any)
	GetValue(key string) any
}

type UserRepository interface {
	GetUserByID(id int) string
}

type UserService interface {
	GetUserProfile(id int) string
}

// ===== 实现 =====

type ConsoleLogger struct {
	instanceID int
}

var loggerInstanceCounter int

func (l *ConsoleLogger) Log(msg string) {
	fmt.Printf("[Logger #%d] %s\n", l.instanceID, msg)
}

type HttpRequestContext struct {
	requestID string
	data      map[string]any
	logger    Logger
}

var requestContextCounter int

func (ctx *HttpRequestContext) GetRequestID() string {
	return ctx.requestID
}

func (ctx *HttpRequestContext) SetValue(key string, value any) {
	ctx.data[key] = value
	ctx.logger.Log(fmt.Sprintf("[%s] Set %s", ctx.requestID, key))
}

func (ctx *HttpRequestContext) GetValue(key string) any {
	return ctx.data[key]
}

// Dispose 在请求作用域结束时调用
func (ctx *HttpRequestContext) Dispose() error {
	ctx.logger.Log(fmt.Sprintf("[%s] Request context released", ctx.requestID))
	return nil
}

type UserRepo struct {
	ctx    RequestContext
	logger Logger
}

func (r *UserRepo) GetUserByID(id int) string {
	r.logger.Log(fmt.Sprintf("[%s] Querying user %d from database", r.ctx.GetRequestID(), id))
	return fmt.Sprintf("User-%d", id)
}

type UserSvc struct {
	repo   UserRepository
	ctx    RequestContext
	logger Logger
}

func (s *UserSvc) GetUserProfile(id int) string {
	s.logger.Log(fmt.Sprintf("[%s] Getting user profile for %d", s.ctx.GetRequestID(), id))
	userName := s.repo.GetUserByID(id)
	s.ctx.SetValue("lastUser", userName)
	return fmt.Sprintf("Profile of %s", userName)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// ===== 主程序 =====

func main() {
	fmt.Println("=== Lifetime Scope Demo ===")
	fmt.Println()

	registry := di.MustNewComponentRegistry(
		// 1. Logger 为单例（全局共享）
		must(di.Provide(func(di.ResolveContext) (Logger, error) {
			loggerInstanceCounter++
			return &ConsoleLogger{instanceID: loggerInstanceCounter}, nil
		}, di.SingleInstance())),

		// 2. RequestContext 每个请求作用域一个
		must(di.Provide(func(ctx di.ResolveContext) (RequestContext, error) {
			logger, err := di.Resolve[Logger](ctx)
			if err != nil {
				return nil, err
			}
			requestContextCounter++
			return &HttpRequestContext{
				requestID: fmt.Sprintf("REQ-%d", requestContextCounter),
				data:      make(map[string]any),
				logger:    logger,
			}, nil
		}, di.InstancePerLifetimeScope())),

		// 3. UserRepository 每个请求作用域一个
		must(di.Provide(func(ctx di.ResolveContext) (UserRepository, error) {
			return &UserRepo{
				ctx:    di.MustResolve[RequestContext](ctx),
				logger: di.MustResolve[Logger](ctx),
			}, nil
		}, di.InstancePerLifetimeScope())),

		// 4. UserService 每次解析都新建
		must(di.Provide(func(ctx di.ResolveContext) (UserService, error) {
			repo, err := di.Resolve[UserRepository](ctx)
			if err != nil {
				return nil, err
			}
			return &UserSvc{
				repo:   repo,
				ctx:    di.MustResolve[RequestContext](ctx),
				logger: di.MustResolve[Logger](ctx),
			}, nil
		})),
	)

	root := di.NewRootScope(registry, di.WithLogger(logging.NewLogger()))
	defer root.Dispose()

	// 模拟处理 HTTP 请求的函数
	handleRequest := func(requestNum int) {
		fmt.Printf("\n--- Handling Request #%d ---\n", requestNum)

		// 为每个请求创建作用域
		scope, err := root.BeginLifetimeScope()
		if err != nil {
			panic(err)
		}
		defer scope.Dispose()

		// 获取两次 UserService（每次新建，应该是不同实例）
		userService1 := di.MustResolve[UserService](scope)
		userService2 := di.MustResolve[UserService](scope)

		profile1 := userService1.GetUserProfile(100 + requestNum)
		fmt.Printf("Result: %s\n", profile1)

		profile2 := userService2.GetUserProfile(200 + requestNum)
		fmt.Printf("Result: %s\n", profile2)

		// 验证：同一作用域内，RequestContext 应该是同一个
		requestContext := di.MustResolve[RequestContext](scope)
		fmt.Printf("Request ID: %s\n", requestContext.GetRequestID())
		fmt.Printf("Last User: %v\n", requestContext.GetValue("lastUser"))
	}

	// 处理3个请求
	handleRequest(1)
	handleRequest(2)
	handleRequest(3)

	fmt.Println("\n=== Summary ===")
	fmt.Printf("Logger instances created: %d (Expected: 1, because it's Singleton)\n", loggerInstanceCounter)
	fmt.Printf("RequestContext instances created: %d (Expected: 3, one per request scope)\n", requestContextCounter)
}
