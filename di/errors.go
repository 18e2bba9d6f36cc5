package di

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrScopeDisposed 在已释放的作用域上解析或创建子作用域
	ErrScopeDisposed = errors.New("di: lifetime scope has been disposed")

	// ErrOperationEnded 激活函数在解析操作结束后仍使用其 ResolveContext
	ErrOperationEnded = errors.New("di: resolve operation has already ended")

	// ErrNilInstance 激活函数或 Activating 观察者给出了 nil 实例
	ErrNilInstance = errors.New("di: component produced a nil instance")
)

// NotRegisteredError 请求的服务没有任何注册
type NotRegisteredError struct {
	Service Service
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("di: service %s is not registered", e.Service)
}

// CircularDependencyError 激活栈自相交。
// Chain 为检测时激活栈的内容，末尾追加了被重复请求的注册。
type CircularDependencyError struct {
	Chain []*ComponentRegistration
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, reg := range e.Chain {
		parts[i] = describe(reg)
	}
	return fmt.Sprintf("di: circular component dependency detected: %s", strings.Join(parts, " -> "))
}

// ActivationError 激活函数本身返回了错误
type ActivationError struct {
	Component *ComponentRegistration
	Err       error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("di: activating %s failed: %v", describe(e.Component), e.Err)
}

func (e *ActivationError) Unwrap() error {
	return e.Err
}

// EventPhase 标识观察者所在的激活阶段
type EventPhase string

const (
	PhaseActivating EventPhase = "Activating"
	PhaseActivated  EventPhase = "Activated"
)

// ObserverError Activating/Activated 观察者返回了错误
type ObserverError struct {
	Component *ComponentRegistration
	Phase     EventPhase
	Index     int // 观察者在列表中的位置
	Err       error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("di: %s observer #%d of %s failed: %v", e.Phase, e.Index, describe(e.Component), e.Err)
}

func (e *ObserverError) Unwrap() error {
	return e.Err
}

// DuplicateSharedInstanceError 同一作用域内同一注册的共享实例被写入两次。
// 这是编程错误，说明绕过了解析操作自身的防重复激活检查。
type DuplicateSharedInstanceError struct {
	ID uuid.UUID
}

func (e *DuplicateSharedInstanceError) Error() string {
	return fmt.Sprintf("di: shared instance for registration %s already exists in this scope", e.ID)
}

// DependencyResolutionError 顶层解析失败时返回给调用方的聚合错误。
// Unwrap 返回根因，errors.As 可以取得内部的具体错误类型。
type DependencyResolutionError struct {
	Service Service
	Err     error
}

func (e *DependencyResolutionError) Error() string {
	return fmt.Sprintf("di: resolving %s failed: %v", e.Service, e.Err)
}

func (e *DependencyResolutionError) Unwrap() error {
	return e.Err
}

// Cause 沿错误链返回最内层的解析错误类型（未注册、循环依赖、激活失败或观察者失败）
func (e *DependencyResolutionError) Cause() error {
	var cause error = e.Err
	for err := e.Err; err != nil; err = errors.Unwrap(err) {
		switch err.(type) {
		case *NotRegisteredError, *CircularDependencyError, *ActivationError, *ObserverError, *DuplicateSharedInstanceError:
			cause = err
		}
	}
	return cause
}

// ReleaseError 单个实例释放失败
type ReleaseError struct {
	Instance any
	Err      error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("di: releasing %T failed: %v", e.Instance, e.Err)
}

func (e *ReleaseError) Unwrap() error {
	return e.Err
}

func describe(reg *ComponentRegistration) string {
	if reg == nil {
		return "<nil>"
	}
	return reg.String()
}

// panicError 把 recover 得到的值转换为错误
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
