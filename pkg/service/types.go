// Package service 通过 gRPC 和 WebSocket 对外提供识别服务
//
// 消息使用 JSON 编码，图像以 PNG/JPEG 等编码后的字节传输。
package service

import (
	"image"
	"math"

	"github.com/zoeyai/shapeid/pkg/library"
	"github.com/zoeyai/shapeid/pkg/shapeid"
)

// Template 请求中的模板
type Template struct {
	Name  string `json:"name"`
	Image []byte `json:"image"`
}

// EvaluateRequest 识别请求
type EvaluateRequest struct {
	// Input 编码后的输入图像
	Input []byte `json:"input"`
	// Templates 模板库，顺序即库顺序
	Templates []Template `json:"templates"`
	// Threshold 标注阈值，为空时使用服务端默认值
	Threshold *float64 `json:"threshold,omitempty"`
	// Area 搜索区域: full / top / bottom，为空时使用服务端默认值
	Area string `json:"area,omitempty"`
	// Label 是否绘制标签，为空时使用服务端默认值
	Label *bool `json:"label,omitempty"`
	// SkipAnnotated 不返回标注图
	SkipAnnotated bool `json:"skipAnnotated,omitempty"`
}

// Score 单个模板的结果
type Score struct {
	Index   int     `json:"index"`
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Skipped bool    `json:"skipped,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Matched bool    `json:"matched"`
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
}

// EvaluateResponse 识别结果
type EvaluateResponse struct {
	Scores    []Score `json:"scores"`
	Best      int     `json:"best"`
	BestName  string  `json:"bestName,omitempty"`
	BestScore float64 `json:"bestScore"`
	Matched   bool    `json:"matched"`
	// Annotated PNG 编码的标注图
	Annotated  []byte `json:"annotated,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// NewEvaluateRequest 由内存中的图像构建请求
func NewEvaluateRequest(input image.Image, entries []shapeid.Entry) (*EvaluateRequest, error) {
	data, err := library.EncodePNG(input)
	if err != nil {
		return nil, err
	}
	req := &EvaluateRequest{Input: data, Templates: make([]Template, 0, len(entries))}
	for _, e := range entries {
		tpl, err := library.EncodePNG(e.Image)
		if err != nil {
			return nil, err
		}
		req.Templates = append(req.Templates, Template{Name: e.Name, Image: tpl})
	}
	return req, nil
}

// entries 解码请求中的模板
func (r *EvaluateRequest) entries() ([]shapeid.Entry, error) {
	entries := make([]shapeid.Entry, 0, len(r.Templates))
	for i, t := range r.Templates {
		img, err := library.Decode(t.Image)
		if err != nil {
			return nil, &decodeError{what: "模板", index: i, name: t.Name, err: err}
		}
		entries = append(entries, shapeid.Entry{Name: t.Name, Image: img})
	}
	return entries, nil
}

// toResponse 转换识别结果，-Inf 无法用 JSON 表示，跳过的模板以 Skipped 标记
func toResponse(report *shapeid.Report, withImage bool) (*EvaluateResponse, error) {
	resp := &EvaluateResponse{
		Scores:     make([]Score, len(report.Results)),
		Best:       report.Best,
		BestName:   report.BestName,
		Matched:    report.Matched,
		DurationMs: report.Elapsed.Milliseconds(),
	}
	if report.Best != shapeid.NoMatch {
		resp.BestScore = report.BestScore
	}
	for i, res := range report.Results {
		s := Score{
			Index:   res.Index,
			Name:    res.Name,
			Matched: res.Matched,
			X:       res.Bounds.Min.X,
			Y:       res.Bounds.Min.Y,
			Width:   res.Bounds.Dx(),
			Height:  res.Bounds.Dy(),
		}
		if res.Status == shapeid.StatusSkipped || math.IsInf(res.Score, 0) {
			s.Skipped = true
			if res.Err != nil {
				s.Reason = res.Err.Error()
			}
		} else {
			s.Score = res.Score
		}
		resp.Scores[i] = s
	}
	if withImage {
		data, err := library.EncodePNG(report.Annotated)
		if err != nil {
			return nil, err
		}
		resp.Annotated = data
	}
	return resp, nil
}

// AnnotatedImage 解码标注图
func (r *EvaluateResponse) AnnotatedImage() (image.Image, error) {
	return library.Decode(r.Annotated)
}
