package retrieval

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// TokenCounter 统计文本 token 数，供上下文装配的预算核算使用。
type TokenCounter interface {
	CountTokens(text string) int
}

// 模型名到 tiktoken 编码的映射
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// TiktokenCounter 基于 tiktoken 的精确计数器。
// 编码数据懒加载（首次使用时可能触发下载），初始化失败时
// 回退到 len(text)/4 估算并记录警告。
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
	logger   *zap.Logger
}

// NewTiktokenCounter 为给定模型创建计数器。未知模型使用 cl100k_base。
func NewTiktokenCounter(model string, logger *zap.Logger) *TiktokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoding, ok := modelEncodings[model]
	if !ok {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding, logger: logger}
}

func (t *TiktokenCounter) init() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
}

// CountTokens 返回文本的 token 数，编码不可用时用 len/4 估算。
func (t *TiktokenCounter) CountTokens(text string) int {
	t.init()
	if t.initErr != nil {
		t.logger.Warn("tiktoken encoding unavailable, falling back to estimate",
			zap.Error(t.initErr))
		return len(text) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EstimateCounter 纯估算计数器，不依赖编码数据。测试与离线环境使用。
type EstimateCounter struct{}

// CountTokens 以 len(text)/4 估算 token 数。
func (EstimateCounter) CountTokens(text string) int {
	return len(text) / 4
}
