package di

import (
	"fmt"

	"github.com/google/uuid"
)

// ComponentRegistry 是服务到组件注册的只读目录。
// 构建完成后不再修改，因此可以被多个作用域并发读取而无需加锁。
type ComponentRegistry struct {
	registrations []*ComponentRegistration
	byService     map[Service][]*ComponentRegistration
	defaults      map[Service]*ComponentRegistration
	byID          map[uuid.UUID]*ComponentRegistration
}

// NewComponentRegistry 由一组注册构建目录。
// 同一服务的候选按注册顺序保存；默认选择第一个标记 AsDefault 的注册，否则选择第一个注册。
func NewComponentRegistry(regs ...*ComponentRegistration) (*ComponentRegistry, error) {
	r := &ComponentRegistry{
		registrations: make([]*ComponentRegistration, 0, len(regs)),
		byService:     make(map[Service][]*ComponentRegistration),
		defaults:      make(map[Service]*ComponentRegistration),
		byID:          make(map[uuid.UUID]*ComponentRegistration, len(regs)),
	}

	for i, reg := range regs {
		if reg == nil {
			return nil, fmt.Errorf("di: registration %d is nil", i)
		}
		if _, exists := r.byID[reg.id]; exists {
			return nil, fmt.Errorf("di: registration %s added twice", reg.id)
		}
		r.byID[reg.id] = reg
		r.registrations = append(r.registrations, reg)

		for _, svc := range reg.services {
			r.byService[svc] = append(r.byService[svc], reg)
			if reg.isDefault {
				if _, ok := r.defaults[svc]; !ok {
					r.defaults[svc] = reg
				}
			}
		}
	}

	return r, nil
}

// MustNewComponentRegistry 同 NewComponentRegistry，失败时 panic
func MustNewComponentRegistry(regs ...*ComponentRegistration) *ComponentRegistry {
	r, err := NewComponentRegistry(regs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup 返回可满足 svc 的全部注册（按注册顺序）
func (r *ComponentRegistry) Lookup(svc Service) ([]*ComponentRegistration, bool) {
	regs, ok := r.byService[svc]
	if !ok {
		return nil, false
	}
	out := make([]*ComponentRegistration, len(regs))
	copy(out, regs)
	return out, true
}

// Default 按选择策略返回 svc 的注册
func (r *ComponentRegistry) Default(svc Service) (*ComponentRegistration, bool) {
	if reg, ok := r.defaults[svc]; ok {
		return reg, true
	}
	regs := r.byService[svc]
	if len(regs) == 0 {
		return nil, false
	}
	return regs[0], true
}

// IsRegistered 报告 svc 是否存在注册
func (r *ComponentRegistry) IsRegistered(svc Service) bool {
	return len(r.byService[svc]) > 0
}

// Registration 按标识查找注册
func (r *ComponentRegistry) Registration(id uuid.UUID) (*ComponentRegistration, bool) {
	reg, ok := r.byID[id]
	return reg, ok
}

// Registrations 返回全部注册（按注册顺序）
func (r *ComponentRegistry) Registrations() []*ComponentRegistration {
	out := make([]*ComponentRegistration, len(r.registrations))
	copy(out, r.registrations)
	return out
}
