package database

import (
	"context"
	"time"
)

// stateTimeout 访客状态读写超时
const stateTimeout = 5 * time.Second

// SessionKV 将存储中某个会话的状态适配为键值接口
type SessionKV struct {
	store     Store
	sessionID string
}

// NewSessionKV 创建会话键值存储
func NewSessionKV(store Store, sessionID string) *SessionKV {
	return &SessionKV{store: store, sessionID: sessionID}
}

// Get 读取
func (k *SessionKV) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), stateTimeout)
	defer cancel()
	return k.store.GetState(ctx, k.sessionID, key)
}

// Set 写入
func (k *SessionKV) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), stateTimeout)
	defer cancel()
	return k.store.SetState(ctx, k.sessionID, key, value)
}
