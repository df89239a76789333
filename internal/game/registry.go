package game

import (
	"sync"
	"time"
)

// Registry 按会话保存拼图实例
type Registry struct {
	mu        sync.Mutex
	deps      Deps
	instances map[string]*Instance
}

// NewRegistry 创建实例表
func NewRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{deps: deps, instances: make(map[string]*Instance)}
}

// Get 获取会话的实例，不存在时按当前模式创建
func (r *Registry) Get(sessionID string, admin bool) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[sessionID]
	if !ok {
		inst = NewInstance(r.deps, admin)
		r.instances[sessionID] = inst
	}
	return inst
}

// Peek 获取已存在的实例
func (r *Registry) Peek(sessionID string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[sessionID]
	return inst, ok
}

// Len 实例数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// EvictIdle 移除空闲超过 idle 的实例，返回移除数量
func (r *Registry) EvictIdle(idle time.Duration) int {
	cutoff := r.deps.Now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, inst := range r.instances {
		if inst.LastUsed().Before(cutoff) {
			delete(r.instances, id)
			n++
		}
	}
	return n
}
