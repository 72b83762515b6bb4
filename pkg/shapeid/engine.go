package shapeid

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/zoeyai/shapeid/pkg/vision/imgproc"
	"github.com/zoeyai/shapeid/pkg/vision/ncc"
)

// Engine 模板识别引擎
// 只保存不可变配置，可并发使用
type Engine struct {
	opts options
}

// New 创建引擎
func New(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{opts: o}
}

// Evaluate 便捷函数：使用默认引擎评估
func Evaluate(ctx context.Context, input image.Image, library []Entry, opts ...Option) (*Report, error) {
	return New().EvaluateWith(ctx, input, library, opts...)
}

// Evaluate 在模板库中查找与输入最匹配的模板
func (e *Engine) Evaluate(ctx context.Context, input image.Image, library []Entry) (*Report, error) {
	return e.EvaluateWith(ctx, input, library)
}

// EvaluateWith 同 Evaluate，opts 仅对本次调用生效
func (e *Engine) EvaluateWith(ctx context.Context, input image.Image, library []Entry, opts ...Option) (*Report, error) {
	startTime := time.Now()

	o := e.opts
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := imgproc.Validate(input); err != nil {
		return nil, fmt.Errorf("输入图像: %w", err)
	}

	w, h := imgproc.Size(input)
	region, err := o.area.Region(w, h)
	if err != nil {
		return nil, err
	}

	annotated, err := imgproc.CloneRGBA(input)
	if err != nil {
		return nil, fmt.Errorf("输入图像: %w", err)
	}

	// 搜索区域为空（例如高度为 1 的上半部分）时所有模板都会被跳过
	var search *image.Gray
	if !region.Empty() {
		cropped, err := imgproc.CropRegion(input, region)
		if err != nil {
			return nil, err
		}
		if search, err = imgproc.ToGrayscale(cropped); err != nil {
			return nil, fmt.Errorf("搜索区域: %w", err)
		}
	}

	results := make([]EntryResult, len(library))
	job := func(i int) error {
		res, err := correlateEntry(i, library[i], search, region, &o)
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	}
	if err := run(ctx, len(library), o.workers, job); err != nil {
		return nil, err
	}

	report := &Report{
		Scores:       make([]float64, len(results)),
		Results:      results,
		Best:         selectBest(results),
		Annotated:    annotated,
		Area:         o.area,
		SearchRegion: region,
		Threshold:    o.threshold,
	}
	for i, res := range results {
		report.Scores[i] = res.Score
	}
	if winner, ok := report.Winner(); ok {
		report.BestName = winner.Name
		report.BestScore = winner.Score
		report.Matched = winner.Matched
	}

	if err := annotate(annotated, report, &o); err != nil {
		return nil, err
	}

	report.Elapsed = time.Since(startTime)
	return report, nil
}

// correlateEntry 评估单个模板
// 模板过大时跳过并返回 StatusSkipped，其他错误终止整次评估
func correlateEntry(i int, entry Entry, search *image.Gray, region imgproc.Region, o *options) (EntryResult, error) {
	res := EntryResult{Index: i, Name: entry.Name}

	tpl, err := imgproc.ToGrayscale(entry.Image)
	if err != nil {
		return res, fmt.Errorf("模板 %d (%s): %w", i, entry.Name, err)
	}
	tw, th := imgproc.Size(tpl)

	var m ncc.Result
	if search == nil {
		err = ncc.CheckSize(region.Width, region.Height, tw, th)
	} else {
		m, err = o.correlator.Correlate(search, tpl)
	}
	if errors.Is(err, ncc.ErrTemplateLargerThanSearchArea) {
		res.Status = StatusSkipped
		res.Score = math.Inf(-1)
		res.Err = err
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("模板 %d (%s): %w", i, entry.Name, err)
	}

	// 局部坐标转换为整图坐标
	res.Score = m.Score
	res.Location = m.Location.Add(image.Pt(region.X, region.Y))
	res.Bounds = image.Rectangle{Min: res.Location, Max: res.Location.Add(image.Pt(tw, th))}
	res.Matched = m.Score > o.threshold
	return res, nil
}

// selectBest 取第一个严格最大值
func selectBest(results []EntryResult) int {
	best := NoMatch
	for i, res := range results {
		if res.Status != StatusOK {
			continue
		}
		if best == NoMatch || res.Score > results[best].Score {
			best = i
		}
	}
	return best
}

// run 执行 n 个任务，每个任务开始前检查 ctx
// workers > 1 时并发执行，任务只写入自己的下标
func run(ctx context.Context, n, workers int, job func(i int) error) error {
	if workers <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("评估已取消: %w", err)
			}
			if err := job(i); err != nil {
				return err
			}
		}
		return nil
	}

	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers = min(workers, n)
	errs := make([]error, n)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if innerCtx.Err() != nil {
					continue
				}
				if err := job(i); err != nil {
					errs[i] = err
					cancel()
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		if innerCtx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("评估已取消: %w", err)
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
