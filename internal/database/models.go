// Package database 提供留言与获胜者记录的存储、迁移和实时订阅
package database

import (
	"slices"
	"time"
)

// Collection 集合名称
type Collection string

const (
	// CollectionFeedback 留言集合
	CollectionFeedback Collection = "feedback"
	// CollectionWinners 拼图获胜者集合
	CollectionWinners Collection = "gameWinners"
)

// Valid 集合名是否已知
func (c Collection) Valid() bool {
	return c == CollectionFeedback || c == CollectionWinners
}

// Feedback 留言记录
type Feedback struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Message    string    `json:"message"`
	Likes      int       `json:"likes"`
	Approved   bool      `json:"approved"`
	IsStarred  bool      `json:"isStarred"`
	SessionID  string    `json:"sessionId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ClientDate string    `json:"date"`
}

// Winner 拼图获胜者记录
type Winner struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
	ClientDate string    `json:"date"`
}

// NewFeedback 创建留言所需字段，其余字段由存储层赋默认值
type NewFeedback struct {
	Name       string
	Email      string
	Message    string
	SessionID  string
	ClientDate string
}

// NewWinner 创建获胜者记录所需字段
type NewWinner struct {
	Name       string
	Email      string
	Message    string
	ClientDate string
}

// Snapshot 某个集合在某一时刻的完整内容
type Snapshot struct {
	Collection Collection `json:"collection"`
	Feedback   []Feedback `json:"-"`
	Winners    []Winner   `json:"-"`
}

// clone 复制切片，订阅者之间互不影响
func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Collection: s.Collection,
		Feedback:   slices.Clone(s.Feedback),
		Winners:    slices.Clone(s.Winners),
	}
}
