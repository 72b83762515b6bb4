package shapeid

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

var labelFont = sync.OnceValues(func() (*truetype.Font, error) {
	return freetype.ParseFont(goregular.TTF)
})

// annotate 在彩色副本上标注所有超过阈值的模板，胜出者最后绘制
func annotate(dst *image.RGBA, report *Report, o *options) error {
	for i, res := range report.Results {
		if i == report.Best || !res.Matched {
			continue
		}
		DrawRect(dst, res.Bounds, o.color, o.thickness)
	}

	winner, ok := report.Winner()
	if !ok || !winner.Matched {
		return nil
	}
	DrawRect(dst, winner.Bounds, o.color, o.thickness)
	if o.label {
		text := fmt.Sprintf("%s %.3f", winner.Name, winner.Score)
		if err := DrawLabel(dst, text, winner.Bounds, o.color, o.labelSize); err != nil {
			return fmt.Errorf("绘制标签失败: %w", err)
		}
	}
	return nil
}

// DrawRect 绘制矩形边框，线宽向内延伸，超出图像的部分被裁掉
func DrawRect(dst draw.Image, r image.Rectangle, c color.Color, thickness int) {
	if thickness <= 0 || r.Empty() {
		return
	}
	t := min(thickness, (r.Dx()+1)/2, (r.Dy()+1)/2)
	src := image.NewUniform(c)
	bars := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t), // 上
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y), // 下
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y), // 左
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y), // 右
	}
	for _, bar := range bars {
		bar = bar.Intersect(dst.Bounds())
		if bar.Empty() {
			continue
		}
		draw.Draw(dst, bar, src, image.Point{}, draw.Src)
	}
}

// DrawLabel 在矩形上方绘制文字，上方空间不足时画在矩形下方
func DrawLabel(dst draw.Image, text string, anchor image.Rectangle, c color.Color, size float64) error {
	f, err := labelFont()
	if err != nil {
		return err
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(f)
	ctx.SetFontSize(size)
	ctx.SetClip(dst.Bounds())
	ctx.SetDst(dst)
	ctx.SetSrc(image.NewUniform(c))
	ctx.SetHinting(font.HintingFull)

	ascent := int(ctx.PointToFixed(size) >> 6)
	y := anchor.Min.Y - 2
	if y-ascent < dst.Bounds().Min.Y {
		y = anchor.Max.Y + ascent + 1
	}
	_, err = ctx.DrawString(text, freetype.Pt(anchor.Min.X, y))
	return err
}
