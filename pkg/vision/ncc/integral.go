package ncc

import "image"

// integral 灰度值及其平方的积分图 (summed-area table)
// 多一行一列零边界，窗口求和为 O(1)
type integral struct {
	sum   []int64
	sumSq []int64
	W, H  int
}

func newIntegral(img *image.Gray) *integral {
	b := img.Bounds()
	W, H := b.Dx(), b.Dy()
	stride := W + 1
	p := &integral{
		sum:   make([]int64, stride*(H+1)),
		sumSq: make([]int64, stride*(H+1)),
		W:     W,
		H:     H,
	}
	for y := 0; y < H; y++ {
		var rowSum, rowSq int64
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		for x := 0; x < W; x++ {
			v := int64(img.Pix[off+x])
			rowSum += v
			rowSq += v * v
			i := (y+1)*stride + x + 1
			p.sum[i] = p.sum[i-stride] + rowSum
			p.sumSq[i] = p.sumSq[i-stride] + rowSq
		}
	}
	return p
}

// window 返回 [x, x+w) x [y, y+h) 内的灰度和与平方和
func (p *integral) window(x, y, w, h int) (int64, int64) {
	stride := p.W + 1
	a := y*stride + x
	b := y*stride + x + w
	c := (y+h)*stride + x
	d := (y+h)*stride + x + w
	return p.sum[d] - p.sum[b] - p.sum[c] + p.sum[a],
		p.sumSq[d] - p.sumSq[b] - p.sumSq[c] + p.sumSq[a]
}

// templateStats 模板的灰度和与平方和
type templateStats struct {
	sumT  int64
	sumT2 int64
}

func newTemplateStats(img *image.Gray) templateStats {
	b := img.Bounds()
	var s templateStats
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		for _, v := range img.Pix[off : off+b.Dx()] {
			s.sumT += int64(v)
			s.sumT2 += int64(v) * int64(v)
		}
	}
	return s
}
