package shapeid

import (
	"fmt"
	"image/color"
	"math"

	"github.com/zoeyai/shapeid/pkg/vision/imgproc"
	"github.com/zoeyai/shapeid/pkg/vision/ncc"
)

// DefaultThreshold 默认匹配阈值
const DefaultThreshold = 0.05

// 默认标注样式
var (
	DefaultColor     = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	DefaultThickness = 2
	DefaultLabelSize = 12.0
)

// Option 配置选项函数类型
type Option func(*options)

// options 评估配置
type options struct {
	threshold  float64
	area       imgproc.Area
	workers    int
	correlator ncc.Correlator
	color      color.RGBA
	thickness  int
	label      bool
	labelSize  float64
}

func defaultOptions() options {
	return options{
		threshold:  DefaultThreshold,
		area:       imgproc.AreaFull,
		workers:    1,
		correlator: ncc.Default,
		color:      DefaultColor,
		thickness:  DefaultThickness,
		labelSize:  DefaultLabelSize,
	}
}

func (o *options) validate() error {
	if math.IsNaN(o.threshold) {
		return fmt.Errorf("阈值不能为 NaN")
	}
	if !o.area.Valid() {
		return fmt.Errorf("%w: %d", imgproc.ErrUnknownArea, int(o.area))
	}
	if o.workers < 0 {
		return fmt.Errorf("并发数不能为负数: %d", o.workers)
	}
	if o.correlator == nil {
		return fmt.Errorf("未设置匹配器")
	}
	if o.thickness < 0 {
		return fmt.Errorf("线宽不能为负数: %d", o.thickness)
	}
	if o.label && o.labelSize <= 0 {
		return fmt.Errorf("标签字号必须大于 0: %v", o.labelSize)
	}
	return nil
}

// WithThreshold 设置阈值，只影响是否标注，不影响分数和胜出者
func WithThreshold(threshold float64) Option {
	return func(o *options) {
		o.threshold = threshold
	}
}

// WithArea 设置搜索区域
func WithArea(area imgproc.Area) Option {
	return func(o *options) {
		o.area = area
	}
}

// WithWorkers 设置并发数，<= 1 时顺序执行
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithCorrelator 设置匹配后端
func WithCorrelator(c ncc.Correlator) Option {
	return func(o *options) {
		o.correlator = c
	}
}

// WithMethod 使用纯 Go 匹配器及指定方法
func WithMethod(method ncc.Method) Option {
	return func(o *options) {
		o.correlator = ncc.New(method)
	}
}

// WithColor 设置标注颜色
func WithColor(c color.RGBA) Option {
	return func(o *options) {
		o.color = c
	}
}

// WithThickness 设置标注线宽，0 表示不画矩形
func WithThickness(px int) Option {
	return func(o *options) {
		o.thickness = px
	}
}

// WithLabel 在胜出模板旁绘制名称与置信度
func WithLabel(enabled bool) Option {
	return func(o *options) {
		o.label = enabled
	}
}

// WithLabelSize 设置标签字号 (pt)
func WithLabelSize(size float64) Option {
	return func(o *options) {
		o.labelSize = size
	}
}
