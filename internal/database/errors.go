package database

import (
	"errors"
	"fmt"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// StoreWriteError 写入（创建/更新/删除）失败
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("存储写入失败 (%s): %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// StoreSubscriptionError 实时订阅建立或刷新失败
type StoreSubscriptionError struct {
	Collection Collection
	Err        error
}

func (e *StoreSubscriptionError) Error() string {
	return fmt.Sprintf("订阅 %s 失败: %v", e.Collection, e.Err)
}

func (e *StoreSubscriptionError) Unwrap() error { return e.Err }

// ErrConfirmationRequired 删除操作缺少确认
var ErrConfirmationRequired = errors.New("删除操作需要确认")
