package utils

import (
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail 校验邮箱格式（只做基本形状检查）
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ClientDate 返回 YYYY-MM-DD 格式日期
func ClientDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// ValidationError 表单校验失败，Message 为本地化提示
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Blank 字符串是否为空白
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
