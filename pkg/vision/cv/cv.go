// Package cv 提供基于 OpenCV (gocv) 的模板匹配后端
//
// Matcher 实现 ncc.Correlator，调用 gocv.MatchTemplate + MinMaxLoc，
// 可替换纯 Go 的 ncc.Matcher 供 shapeid.Engine 使用。
//
// 基本用法:
//
//	engine := shapeid.New(shapeid.WithCorrelator(cv.NewMatcher(ncc.MethodCCoeffNormed)))
//	report, err := engine.Evaluate(ctx, input, library)
//
// 注意: 模板方差为 0 时两个后端都在所有位置返回 1；搜索窗口方差为 0 时
// ncc.Matcher 返回 0，OpenCV 的结果受 float32 舍入影响。
package cv
