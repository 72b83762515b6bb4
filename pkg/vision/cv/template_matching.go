package cv

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/zoeyai/shapeid/pkg/vision/ncc"
)

// Matcher OpenCV 模板匹配器
type Matcher struct {
	method ncc.Method
}

// NewMatcher 创建 OpenCV 模板匹配器
func NewMatcher(method ncc.Method) *Matcher {
	return &Matcher{method: method}
}

// Correlate 查找最佳匹配结果
func (m *Matcher) Correlate(search, template *image.Gray) (ncc.Result, error) {
	mode, err := templateMatchMode(m.method)
	if err != nil {
		return ncc.Result{}, err
	}
	if search == nil || template == nil {
		return ncc.Result{}, fmt.Errorf("灰度图为 nil")
	}

	// 检查图像尺寸
	sb, tb := search.Bounds(), template.Bounds()
	if err := ncc.CheckSize(sb.Dx(), sb.Dy(), tb.Dx(), tb.Dy()); err != nil {
		return ncc.Result{}, err
	}

	searchMat, err := GrayToMat(search)
	if err != nil {
		return ncc.Result{}, err
	}
	defer searchMat.Close()

	templateMat, err := GrayToMat(template)
	if err != nil {
		return ncc.Result{}, err
	}
	defer templateMat.Close()

	// 计算模板匹配结果矩阵
	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(searchMat, templateMat, &result, mode, mask)
	if result.Empty() {
		return ncc.Result{}, fmt.Errorf("模板匹配失败: 结果矩阵为空")
	}

	// 获取最佳匹配位置
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)
	score := float64(maxVal)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = -1
	}

	return ncc.Result{Score: score, Location: maxLoc}, nil
}

// templateMatchMode 映射匹配方法
func templateMatchMode(method ncc.Method) (gocv.TemplateMatchMode, error) {
	switch method {
	case ncc.MethodCCoeffNormed:
		return gocv.TmCcoeffNormed, nil
	case ncc.MethodCCorrNormed:
		return gocv.TmCcorrNormed, nil
	default:
		return 0, fmt.Errorf("不支持的匹配方法: %v", method)
	}
}

var _ ncc.Correlator = (*Matcher)(nil)
