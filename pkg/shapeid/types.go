// Package shapeid 在模板库中识别与输入图像最匹配的模板
//
// 流程:
//   - 按搜索区域（整图 / 上半 / 下半）裁剪输入并转为灰度
//   - 对模板库中每个模板做归一化互相关匹配，记录置信度
//   - 取置信度最高的模板（并列时取库中靠前者）
//   - 在输入的彩色副本上标注超过阈值的匹配位置
//
// 基本用法:
//
//	engine := shapeid.New(shapeid.WithThreshold(0.8), shapeid.WithArea(imgproc.AreaBottomHalf))
//	report, err := engine.Evaluate(ctx, input, []shapeid.Entry{
//	    {Name: "circle", Image: circle},
//	    {Name: "square", Image: square},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if w, ok := report.Winner(); ok {
//	    fmt.Printf("最佳匹配: %s (%.3f)\n", w.Name, w.Score)
//	}
package shapeid

import (
	"image"
	"time"

	"github.com/zoeyai/shapeid/pkg/vision/imgproc"
)

// NoMatch 没有胜出模板时 Report.Best 的取值
const NoMatch = -1

// Entry 模板库条目
type Entry struct {
	// Name 模板名称
	Name string
	// Image 模板图像（彩色或灰度）
	Image image.Image
}

// Status 单个模板的评估状态
type Status int

const (
	// StatusOK 已完成匹配
	StatusOK Status = iota
	// StatusSkipped 模板大于搜索区域，已跳过
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// EntryResult 单个模板的匹配结果
type EntryResult struct {
	// Index 模板在库中的下标
	Index int `json:"index"`
	// Name 模板名称
	Name string `json:"name"`
	// Score 置信度；跳过时为 -Inf
	Score float64 `json:"score"`
	// Location 最佳位置左上角，整图坐标
	Location image.Point `json:"location"`
	// Bounds 标注矩形，整图坐标
	Bounds image.Rectangle `json:"bounds"`
	// Matched 置信度是否严格大于阈值
	Matched bool `json:"matched"`
	// Status 评估状态
	Status Status `json:"status"`
	// Err 跳过原因
	Err error `json:"-"`
}

// Report 单次评估结果
// 每次调用都会新建，不保留历史
type Report struct {
	// Scores 与模板库顺序一致的置信度列表
	Scores []float64
	// Results 每个模板的详细结果
	Results []EntryResult
	// Best 胜出模板下标，没有时为 NoMatch
	Best int
	// BestName 胜出模板名称
	BestName string
	// BestScore 胜出模板置信度
	BestScore float64
	// Matched 胜出模板置信度是否超过阈值
	Matched bool
	// Annotated 标注后的输入图像副本
	Annotated *image.RGBA
	// Area 搜索区域类型
	Area imgproc.Area
	// SearchRegion 实际搜索区域，整图坐标
	SearchRegion imgproc.Region
	// Threshold 本次使用的阈值
	Threshold float64
	// Elapsed 耗时
	Elapsed time.Duration
}

// Winner 返回胜出模板
func (r *Report) Winner() (EntryResult, bool) {
	if r == nil || r.Best == NoMatch {
		return EntryResult{}, false
	}
	return r.Results[r.Best], true
}

// MatchedEntries 返回所有超过阈值的模板
func (r *Report) MatchedEntries() []EntryResult {
	var out []EntryResult
	for _, res := range r.Results {
		if res.Matched {
			out = append(out, res)
		}
	}
	return out
}
