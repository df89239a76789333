// Package i18n 提供英文/阿拉伯文双语提示文本
package i18n

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// 支持的语言
const (
	EN = "en"
	AR = "ar"
)

// 消息键
const (
	InvalidEmail      = "invalidEmail"
	NameRequired      = "nameRequired"
	FeedbackRequired  = "feedbackRequired"
	FeedbackSubmitted = "feedbackSubmitted"
	WinnerSubmitted   = "winnerSubmitted"
	SubmitInFlight    = "submitInFlight"
	NotWon            = "notWon"
	StoreWriteFailed  = "storeWriteFailed"
	WrongSecret       = "wrongSecret"
	TooManyAttempts   = "tooManyAttempts"
	SecretNotArmed    = "secretNotArmed"
	ConfirmDelete     = "confirmDelete"
	ContactReceived   = "contactReceived"
	TestimonialThanks = "testimonialThanks"
	InvalidRequest    = "invalidRequest"
	InvalidPreference = "invalidPreference"
)

//go:embed messages.yaml
var messagesYAML []byte

// Catalog 语言 -> 键 -> 文本
type Catalog map[string]map[string]string

var defaultCatalog = mustParse(messagesYAML)

// Parse 解析 YAML 消息表
func Parse(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("解析消息表失败: %w", err)
	}
	if _, ok := c[EN]; !ok {
		return nil, fmt.Errorf("消息表缺少 %s", EN)
	}
	return c, nil
}

func mustParse(data []byte) Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup 查找文本，缺失时回退英文，再缺失返回键本身
func (c Catalog) Lookup(lang, key string) string {
	if msg, ok := c[lang][key]; ok {
		return msg
	}
	if msg, ok := c[EN][key]; ok {
		return msg
	}
	return key
}

// T 使用内置消息表
func T(lang, key string) string {
	return defaultCatalog.Lookup(lang, key)
}
