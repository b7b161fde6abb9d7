package confidence

import (
	"sync"

	"go.uber.org/zap"
)

// ===== 阈值校准器 =====

const (
	// 样本不足此数时不做校准
	minCalibrationSamples = 10
	// 样本窗口上限，超过后丢弃最旧样本
	maxCalibrationSamples = 200

	calibrationFloor = 0.1
	calibrationCeil  = 0.95
	calibrationStep  = 0.05
)

type sample struct {
	confidence float64
	success    bool
}

// Calibrator 根据请求反馈滑动校准回退阈值。
// 目标：被接受（置信度达到阈值、未回退）的请求中，成功比例
// 不低于 targetHitRate。样本窗口有界，线程安全。
type Calibrator struct {
	mu        sync.Mutex
	samples   []sample
	threshold float64
	target    float64
	logger    *zap.Logger
}

// NewCalibrator 创建校准器。initial 为初始阈值，target 为目标命中率。
func NewCalibrator(initial, target float64, logger *zap.Logger) *Calibrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calibrator{
		threshold: initial,
		target:    target,
		logger:    logger.With(zap.String("component", "confidence_calibrator")),
	}
}

// Record 记录一次请求的置信度与最终成败反馈。
func (c *Calibrator) Record(confidence float64, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.samples = append(c.samples, sample{confidence: confidence, success: success})
	if len(c.samples) > maxCalibrationSamples {
		c.samples = c.samples[len(c.samples)-maxCalibrationSamples:]
	}
}

// Threshold 返回当前阈值。
func (c *Calibrator) Threshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// Calibrate 重新计算阈值：从低到高扫描候选阈值，选取能让
// 接受样本命中率达到目标的最低阈值。样本不足或没有任何候选
// 达标时阈值保持不变。返回当前（可能更新后的）阈值。
func (c *Calibrator) Calibrate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.samples) < minCalibrationSamples {
		return c.threshold
	}

	for t := calibrationFloor; t <= calibrationCeil+1e-9; t += calibrationStep {
		accepted, hits := 0, 0
		for _, s := range c.samples {
			if s.confidence >= t {
				accepted++
				if s.success {
					hits++
				}
			}
		}
		if accepted == 0 {
			break
		}
		if float64(hits)/float64(accepted) >= c.target {
			old := c.threshold
			c.threshold = t
			if old != t {
				c.logger.Info("fallback threshold recalibrated",
					zap.Float64("old", old),
					zap.Float64("new", t),
					zap.Int("samples", len(c.samples)))
			}
			return c.threshold
		}
	}

	return c.threshold
}

// SampleCount 返回当前窗口内的样本数。
func (c *Calibrator) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}
