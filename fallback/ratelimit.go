package fallback

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BaSui01/ragflow/types"
)

// ===== 外部搜索限流器 =====

// RateLimiter 对外部搜索调用做滑动窗口限流：
// 分钟窗口与小时窗口同时生效，窗口随时间自行清理。
// 另带一个令牌桶平滑突发。这是引擎中除指标外唯一的跨请求可变状态。
type RateLimiter struct {
	mu         sync.Mutex
	minuteCap  int
	hourCap    int
	timestamps []time.Time
	smoother   *rate.Limiter
	now        func() time.Time
}

// NewRateLimiter 创建限流器。perMinute/perHour 为各窗口的调用上限。
func NewRateLimiter(perMinute, perHour int) *RateLimiter {
	// 令牌桶速率取分钟配额的均摊值，桶深允许短突发
	burst := perMinute / 5
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		minuteCap: perMinute,
		hourCap:   perHour,
		smoother:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		now:       time.Now,
	}
}

// Allow 报告当前是否允许一次调用，允许时记录本次调用。
func (l *RateLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)

	if !l.withinWindows(now) {
		return false
	}
	if !l.smoother.AllowN(now, 1) {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}

// Wait 阻塞到允许一次调用为止，或 ctx 取消。
// 窗口已满时按最旧记录的过期时间轮询。
// 窗口配额在令牌桶放行之后才占用，等待中途取消不烧配额。
func (l *RateLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.evict(now)
		ok := l.withinWindows(now)
		var retry time.Duration
		if !ok {
			retry = l.nextFreeIn(now)
		}
		l.mu.Unlock()

		if !ok {
			timer := time.NewTimer(retry)
			select {
			case <-ctx.Done():
				timer.Stop()
				return types.NewError(types.ErrRateLimited, "rate limit wait cancelled").WithCause(ctx.Err())
			case <-timer.C:
			}
			continue
		}

		if err := l.smoother.Wait(ctx); err != nil {
			return types.NewError(types.ErrRateLimited, "rate limit wait cancelled").WithCause(err)
		}

		// 令牌桶等待期间窗口可能被其他调用占满，复查后才落位
		l.mu.Lock()
		now = l.now()
		l.evict(now)
		if l.withinWindows(now) {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
	}
}

func (l *RateLimiter) withinWindows(now time.Time) bool {
	minuteAgo := now.Add(-time.Minute)
	inMinute := 0
	for _, ts := range l.timestamps {
		if ts.After(minuteAgo) {
			inMinute++
		}
	}
	return inMinute < l.minuteCap && len(l.timestamps) < l.hourCap
}

// evict 清理小时窗口外的记录。timestamps 单调递增，找到首个
// 仍在窗口内的下标即可截断。
func (l *RateLimiter) evict(now time.Time) {
	hourAgo := now.Add(-time.Hour)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(hourAgo) {
		i++
	}
	if i > 0 {
		l.timestamps = l.timestamps[i:]
	}
}

// nextFreeIn 估算距下一个空位的时间
func (l *RateLimiter) nextFreeIn(now time.Time) time.Duration {
	if len(l.timestamps) == 0 {
		return 10 * time.Millisecond
	}
	oldest := l.timestamps[0]
	if len(l.timestamps) >= l.hourCap {
		return oldest.Add(time.Hour).Sub(now) + time.Millisecond
	}
	// 分钟窗口满：等最旧的分钟内记录过期
	minuteAgo := now.Add(-time.Minute)
	for _, ts := range l.timestamps {
		if ts.After(minuteAgo) {
			return ts.Add(time.Minute).Sub(now) + time.Millisecond
		}
	}
	return 10 * time.Millisecond
}

// Usage 返回当前分钟与小时窗口内的调用数。
func (l *RateLimiter) Usage() (minute, hour int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evict(now)
	minuteAgo := now.Add(-time.Minute)
	for _, ts := range l.timestamps {
		if ts.After(minuteAgo) {
			minute++
		}
	}
	return minute, len(l.timestamps)
}
