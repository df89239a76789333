// Package utils 提供通用工具函数
package utils

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Result 通用操作结果
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// JSONResponse 发送 JSON 响应
func JSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("JSON响应写入失败", "error", err)
	}
}

// TextResponse 发送文本响应
func TextResponse(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("文本响应写入失败", "error", err)
	}
}

// ErrorResponse 发送错误响应
func ErrorResponse(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		slog.Error(message, "error", err)
	}
	TextResponse(w, status, message)
}

// ErrorResponseJSON 记录错误并发送 JSON 失败响应
func ErrorResponseJSON(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		slog.Error(message, "error", err)
	}
	FailResponse(w, status, message)
}

// SuccessResponse 发送成功响应
func SuccessResponse(w http.ResponseWriter, message string) {
	JSONResponse(w, http.StatusOK, Result{Success: true, Message: message})
}

// FailResponse 发送带提示的失败响应
func FailResponse(w http.ResponseWriter, status int, message string) {
	JSONResponse(w, status, Result{Success: false, Message: message})
}

// Seconds 向上取整的秒数（Retry-After 使用）
func Seconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

// ZipResponse 发送 ZIP 文件响应
func ZipResponse(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("ZIP响应写入失败", "error", err)
	}
}

// GetClientIP 获取直连客户端 IP，不信任任何转发头
func GetClientIP(r *http.Request) string {
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
