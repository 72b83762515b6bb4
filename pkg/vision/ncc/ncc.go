// Package ncc 提供基于归一化互相关的灰度模板匹配
//
// 默认方法与 OpenCV 的 TM_CCOEFF_NORMED 一致：模板在搜索图上逐像素滑动，
// 每个位置计算零均值归一化相关系数，取最大值所在的左上角坐标。
//
// 基本用法:
//
//	res, err := ncc.Correlate(searchGray, templateGray)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("位置: (%d, %d), 置信度: %.4f\n", res.Location.X, res.Location.Y, res.Score)
package ncc

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/bits"
	"strings"
)

// ErrTemplateLargerThanSearchArea 模板尺寸大于搜索区域
var ErrTemplateLargerThanSearchArea = errors.New("模板尺寸大于搜索区域")

// Result 单次相关匹配结果
type Result struct {
	// Score 最佳位置的相关系数
	Score float64 `json:"score"`
	// Location 最佳位置左上角，搜索图局部坐标
	Location image.Point `json:"location"`
}

// Method 相关方法
type Method int

const (
	// MethodCCoeffNormed 零均值归一化互相关 (TM_CCOEFF_NORMED)，取值 [-1, 1]
	MethodCCoeffNormed Method = iota
	// MethodCCorrNormed 归一化互相关 (TM_CCORR_NORMED)，取值 [0, 1]
	MethodCCorrNormed
)

func (m Method) String() string {
	switch m {
	case MethodCCoeffNormed:
		return "ccoeff_normed"
	case MethodCCorrNormed:
		return "ccorr_normed"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod 解析方法名称 (ccoeff / ccorr)
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ccoeff", "ccoeff_normed", "tm_ccoeff_normed":
		return MethodCCoeffNormed, nil
	case "ccorr", "ccorr_normed", "tm_ccorr_normed":
		return MethodCCorrNormed, nil
	default:
		return MethodCCoeffNormed, fmt.Errorf("未知匹配方法: %q", s)
	}
}

// Correlator 相关匹配器接口
type Correlator interface {
	Correlate(search, template *image.Gray) (Result, error)
}

// ImageSizeError 图像尺寸错误
type ImageSizeError struct {
	SearchSize   [2]int
	TemplateSize [2]int
}

func (e *ImageSizeError) Error() string {
	return fmt.Sprintf("模板尺寸 %dx%d 大于搜索区域 %dx%d",
		e.TemplateSize[0], e.TemplateSize[1], e.SearchSize[0], e.SearchSize[1])
}

// Is 支持 errors.Is(err, ErrTemplateLargerThanSearchArea)
func (e *ImageSizeError) Is(target error) bool {
	return target == ErrTemplateLargerThanSearchArea
}

// CheckSize 检查模板是否能放进搜索图
func CheckSize(searchW, searchH, templateW, templateH int) error {
	if templateW > searchW || templateH > searchH {
		return &ImageSizeError{
			SearchSize:   [2]int{searchW, searchH},
			TemplateSize: [2]int{templateW, templateH},
		}
	}
	return nil
}

// Matcher 纯 Go 实现的模板匹配器
type Matcher struct {
	Method Method
}

// New 创建匹配器
func New(method Method) *Matcher {
	return &Matcher{Method: method}
}

// Default 默认匹配器 (TM_CCOEFF_NORMED)
var Default = New(MethodCCoeffNormed)

// Correlate 使用默认匹配器
func Correlate(search, template *image.Gray) (Result, error) {
	return Default.Correlate(search, template)
}

// Correlate 查找最佳匹配位置
// 按行优先顺序扫描，只有严格更大的分数才会替换当前最佳，因此并列时取最先出现的位置。
func (m *Matcher) Correlate(search, template *image.Gray) (Result, error) {
	best := Result{Score: math.Inf(-1)}
	err := m.scan(search, template, func(x, y int, score float64) {
		if score > best.Score {
			best = Result{Score: score, Location: image.Pt(x, y)}
		}
	})
	if err != nil {
		return Result{}, err
	}
	return best, nil
}

// ScoreMap 完整响应图，等价于 matchTemplate 的结果矩阵
type ScoreMap struct {
	Cols, Rows int
	Scores     []float64
}

// At 返回 (x, y) 处的分数
func (s *ScoreMap) At(x, y int) float64 {
	return s.Scores[y*s.Cols+x]
}

// ScoreMap 计算所有合法位置的分数
func (m *Matcher) ScoreMap(search, template *image.Gray) (*ScoreMap, error) {
	if err := validate(search, template); err != nil {
		return nil, err
	}
	sb, tb := search.Bounds(), template.Bounds()
	sm := &ScoreMap{Cols: sb.Dx() - tb.Dx() + 1, Rows: sb.Dy() - tb.Dy() + 1}
	sm.Scores = make([]float64, sm.Cols*sm.Rows)
	err := m.scan(search, template, func(x, y int, score float64) {
		sm.Scores[y*sm.Cols+x] = score
	})
	if err != nil {
		return nil, err
	}
	return sm, nil
}

func validate(search, template *image.Gray) error {
	if search == nil || template == nil {
		return errors.New("灰度图为 nil")
	}
	sb, tb := search.Bounds(), template.Bounds()
	if sb.Empty() || tb.Empty() {
		return fmt.Errorf("灰度图尺寸为 0: 搜索 %v, 模板 %v", sb.Size(), tb.Size())
	}
	return CheckSize(sb.Dx(), sb.Dy(), tb.Dx(), tb.Dy())
}

// scan 逐位置计算分数并回调，行优先
func (m *Matcher) scan(search, template *image.Gray, visit func(x, y int, score float64)) error {
	if err := validate(search, template); err != nil {
		return err
	}
	if m.Method != MethodCCoeffNormed && m.Method != MethodCCorrNormed {
		return fmt.Errorf("不支持的匹配方法: %v", m.Method)
	}

	sb, tb := search.Bounds(), template.Bounds()
	W, H := sb.Dx(), sb.Dy()
	w, h := tb.Dx(), tb.Dy()
	n := int64(w * h)

	tpl := newTemplateStats(template)
	frame := newIntegral(search)

	for y := 0; y <= H-h; y++ {
		for x := 0; x <= W-w; x++ {
			sumS, sumS2 := frame.window(x, y, w, h)
			sumTS := crossSum(search, template, x, y)

			var score float64
			switch m.Method {
			case MethodCCoeffNormed:
				score = ccoeffNormed(n, tpl, sumS, sumS2, sumTS)
			case MethodCCorrNormed:
				score = ccorrNormed(tpl, sumS2, sumTS)
			}
			visit(x, y, score)
		}
	}
	return nil
}

// ccoeffNormed 方差和协方差以 128 位整数精确求差，n 因子在分子分母中相互抵消
// 模板方差为 0 时与 OpenCV 一致，所有位置取 1；仅搜索窗口方差为 0 时取 0
func ccoeffNormed(n int64, tpl templateStats, sumS, sumS2, sumTS int64) float64 {
	varT := mulDiff(n, tpl.sumT2, tpl.sumT, tpl.sumT)
	if varT == 0 {
		return 1
	}
	varS := mulDiff(n, sumS2, sumS, sumS)
	if varS == 0 {
		return 0
	}
	num := mulDiff(n, sumTS, tpl.sumT, sumS)
	return clamp(num / math.Sqrt(varT*varS))
}

// mulDiff 计算 a*b - c*d，参数均非负
// 乘积按 128 位计算，模板超过约 1.19e7 像素时 int64 乘积会溢出
func mulDiff(a, b, c, d int64) float64 {
	h1, l1 := bits.Mul64(uint64(a), uint64(b))
	h2, l2 := bits.Mul64(uint64(c), uint64(d))
	if h1 < h2 || (h1 == h2 && l1 < l2) {
		return -sub128(h2, l2, h1, l1)
	}
	return sub128(h1, l1, h2, l2)
}

// sub128 返回 (h1,l1) - (h2,l2)，要求被减数不小于减数
func sub128(h1, l1, h2, l2 uint64) float64 {
	lo, borrow := bits.Sub64(l1, l2, 0)
	hi, _ := bits.Sub64(h1, h2, borrow)
	return float64(hi)*0x1p64 + float64(lo)
}

func ccorrNormed(tpl templateStats, sumS2, sumTS int64) float64 {
	if tpl.sumT2 == 0 || sumS2 == 0 {
		if tpl.sumT2 == 0 && sumS2 == 0 {
			return 1
		}
		return 0
	}
	return clamp(float64(sumTS) / math.Sqrt(float64(tpl.sumT2)*float64(sumS2)))
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// crossSum 计算 Σ T(i,j)·S(x+i,y+j)
func crossSum(search, template *image.Gray, x, y int) int64 {
	sb, tb := search.Bounds(), template.Bounds()
	w, h := tb.Dx(), tb.Dy()
	var sum int64
	for j := 0; j < h; j++ {
		so := search.PixOffset(sb.Min.X+x, sb.Min.Y+y+j)
		to := template.PixOffset(tb.Min.X, tb.Min.Y+j)
		srow := search.Pix[so : so+w]
		trow := template.Pix[to : to+w]
		var row uint64
		for i, t := range trow {
			row += uint64(t) * uint64(srow[i])
		}
		sum += int64(row)
	}
	return sum
}
