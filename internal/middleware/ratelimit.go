package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"portfolio-srv/internal/i18n"
	"portfolio-srv/pkg/utils"
)

// RateLimiter 管理员口令尝试限流器（按 IP）
type RateLimiter struct {
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	attempts    map[string]*attemptInfo
	maxAttempts int
	lockTime    time.Duration
	now         func() time.Time
	done        chan struct{}
	ips         *utils.ClientIPResolver
}

type attemptInfo struct {
	count    int
	firstAt  time.Time
	lockedAt time.Time
}

// NewRateLimiter 创建新的限流器
func NewRateLimiter(maxAttempts int, lockTime time.Duration) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())

	rl := &RateLimiter{
		ctx:         ctx,
		cancel:      cancel,
		attempts:    make(map[string]*attemptInfo),
		maxAttempts: maxAttempts,
		lockTime:    lockTime,
		now:         time.Now,
		done:        make(chan struct{}),
	}

	// 启动清理协程
	go rl.cleanup()

	return rl
}

// cleanup 定期清理过期记录
func (rl *RateLimiter) cleanup() {
	defer close(rl.done)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// Sweep 清理已解锁或超过 24 小时的记录
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, info := range rl.attempts {
		if info.lockedAt.IsZero() && now.Sub(info.firstAt) > 24*time.Hour {
			delete(rl.attempts, ip)
		}
		if !info.lockedAt.IsZero() && now.Sub(info.lockedAt) > rl.lockTime {
			delete(rl.attempts, ip)
		}
	}
}

// Close 停止限流器并等待清理协程退出
func (rl *RateLimiter) Close() {
	rl.cancel()
	<-rl.done
}

// SetClientIPResolver 设置计数所用的客户端 IP 解析器，未设置时只使用直连地址
func (rl *RateLimiter) SetClientIPResolver(c *utils.ClientIPResolver) {
	rl.ips = c
}

// ClientIP 返回限流计数所用的 IP
func (rl *RateLimiter) ClientIP(r *http.Request) string {
	return rl.ips.ClientIP(r)
}

// IsLocked 检查IP是否被锁定
func (rl *RateLimiter) IsLocked(ip string) bool {
	return rl.GetLockRemainingTime(ip) > 0
}

// RecordAttempt 记录一次失败尝试，返回是否达到限制
func (rl *RateLimiter) RecordAttempt(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	info, exists := rl.attempts[ip]
	if !exists {
		info = &attemptInfo{firstAt: now}
		rl.attempts[ip] = info
	}

	// 如果之前被锁定但已解锁，重置计数
	if !info.lockedAt.IsZero() && now.Sub(info.lockedAt) >= rl.lockTime {
		info.count = 0
		info.firstAt = now
		info.lockedAt = time.Time{}
	}

	info.count++

	if info.count >= rl.maxAttempts {
		info.lockedAt = now
		return true
	}

	return false
}

// ResetAttempts 重置尝试记录（口令正确时调用）
func (rl *RateLimiter) ResetAttempts(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.attempts, ip)
}

// GetRemainingAttempts 获取剩余尝试次数
func (rl *RateLimiter) GetRemainingAttempts(ip string) int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	info, exists := rl.attempts[ip]
	if !exists {
		return rl.maxAttempts
	}

	remaining := rl.maxAttempts - info.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetLockRemainingTime 获取剩余锁定时间
func (rl *RateLimiter) GetLockRemainingTime(ip string) time.Duration {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	info, exists := rl.attempts[ip]
	if !exists || info.lockedAt.IsZero() {
		return 0
	}

	elapsed := rl.now().Sub(info.lockedAt)
	if elapsed >= rl.lockTime {
		return 0
	}

	return rl.lockTime - elapsed
}

// RateLimit 限流中间件，被锁定的 IP 直接返回 429
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := limiter.ClientIP(r)

			if remaining := limiter.GetLockRemainingTime(ip); remaining > 0 {
				lang := i18n.EN
				if v := GetVisitor(r); v != nil {
					lang = v.State.Lang()
				}
				w.Header().Set("Retry-After", utils.Seconds(remaining))
				utils.JSONResponse(w, http.StatusTooManyRequests, utils.Result{
					Success: false,
					Message: i18n.T(lang, i18n.TooManyAttempts),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
