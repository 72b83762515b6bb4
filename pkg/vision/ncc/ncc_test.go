package ncc

import (
	"errors"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noiseGray(w, h int, seed uint64) *image.Gray {
	r := rand.New(rand.NewPCG(seed, seed*31+7))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.IntN(256))
	}
	return img
}

func solidGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func subGray(src *image.Gray, r image.Rectangle) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			dst.SetGray(x, y, src.GrayAt(r.Min.X+x, r.Min.Y+y))
		}
	}
	return dst
}

// naiveCCoeffNormed 直接按公式计算，用于校验积分图实现
func naiveCCoeffNormed(search, template *image.Gray, x, y int) float64 {
	tb := template.Bounds()
	w, h := tb.Dx(), tb.Dy()
	n := float64(w * h)
	var meanT, meanS float64
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			meanT += float64(template.GrayAt(i, j).Y)
			meanS += float64(search.GrayAt(x+i, y+j).Y)
		}
	}
	meanT /= n
	meanS /= n
	var num, dt, ds float64
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			t := float64(template.GrayAt(i, j).Y) - meanT
			s := float64(search.GrayAt(x+i, y+j).Y) - meanS
			num += t * s
			dt += t * t
			ds += s * s
		}
	}
	return num / math.Sqrt(dt*ds)
}

func TestCorrelateSelfMatch(t *testing.T) {
	for _, img := range []*image.Gray{
		noiseGray(12, 9, 1),
		noiseGray(1, 5, 2),
		solidGray(10, 10, 128),
	} {
		res, err := Correlate(img, img)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, res.Score, 1e-6)
		assert.Equal(t, image.Point{}, res.Location)
	}
}

func TestCorrelateFindsEmbeddedTemplate(t *testing.T) {
	search := noiseGray(40, 30, 3)
	want := image.Pt(17, 11)
	template := subGray(search, image.Rect(want.X, want.Y, want.X+8, want.Y+6))

	res, err := Correlate(search, template)
	require.NoError(t, err)
	assert.Equal(t, want, res.Location)
	assert.InDelta(t, 1.0, res.Score, 1e-6)
}

func TestCorrelateMatchesNaiveFormula(t *testing.T) {
	search := noiseGray(25, 20, 4)
	template := noiseGray(7, 5, 5)

	sm, err := Default.ScoreMap(search, template)
	require.NoError(t, err)
	require.Equal(t, 19, sm.Cols)
	require.Equal(t, 16, sm.Rows)

	for y := 0; y < sm.Rows; y++ {
		for x := 0; x < sm.Cols; x++ {
			assert.InDeltaf(t, naiveCCoeffNormed(search, template, x, y), sm.At(x, y), 1e-6, "位置 (%d,%d)", x, y)
		}
	}
}

func TestCorrelateReturnsScoreMapMaximum(t *testing.T) {
	search := noiseGray(30, 30, 6)
	template := noiseGray(6, 6, 7)

	sm, err := Default.ScoreMap(search, template)
	require.NoError(t, err)
	res, err := Correlate(search, template)
	require.NoError(t, err)

	for y := 0; y < sm.Rows; y++ {
		for x := 0; x < sm.Cols; x++ {
			assert.LessOrEqual(t, sm.At(x, y), res.Score)
		}
	}
	assert.Equal(t, res.Score, sm.At(res.Location.X, res.Location.Y))
}

func TestCorrelateTieBreakRowMajor(t *testing.T) {
	pattern := noiseGray(4, 4, 8)
	search := solidGray(20, 20, 0)
	// 同一图案出现在三个位置，应返回行优先扫描最先遇到的 (12,3)
	for _, p := range []image.Point{{12, 3}, {2, 9}, {14, 9}} {
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				search.SetGray(p.X+x, p.Y+y, pattern.GrayAt(x, y))
			}
		}
	}

	res, err := Correlate(search, pattern)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(12, 3), res.Location)
	assert.InDelta(t, 1.0, res.Score, 1e-6)
}

func TestCorrelateBrightnessInvariant(t *testing.T) {
	template := noiseGray(6, 6, 9)
	search := image.NewGray(image.Rect(0, 0, 6, 6))
	for i, v := range template.Pix {
		search.Pix[i] = uint8(int(v)/2 + 40)
	}
	res, err := Correlate(search, template)
	require.NoError(t, err)
	// 整数除法带来少量量化误差
	assert.Greater(t, res.Score, 0.99)
}

func TestCorrelateInvertedIsNegative(t *testing.T) {
	template := noiseGray(5, 5, 10)
	search := image.NewGray(template.Bounds())
	for i, v := range template.Pix {
		search.Pix[i] = 255 - v
	}
	res, err := Correlate(search, template)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, res.Score, 1e-6)
}

func TestCorrelateFlatWindows(t *testing.T) {
	tests := []struct {
		name     string
		search   *image.Gray
		template *image.Gray
		want     float64
	}{
		{"相同纯色", solidGray(6, 6, 90), solidGray(3, 3, 90), 1},
		{"不同纯色", solidGray(6, 6, 90), solidGray(3, 3, 91), 1},
		{"纯色模板对噪声", noiseGray(8, 8, 11), solidGray(3, 3, 200), 1},
		{"纯色模板对全黑", solidGray(8, 8, 0), solidGray(3, 3, 200), 1},
		{"噪声模板对纯色", solidGray(6, 6, 50), noiseGray(3, 3, 12), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Correlate(tt.search, tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Score)
			assert.Equal(t, image.Point{}, res.Location)
		})
	}
}

func TestScoreMapFlatTemplateEverywhere(t *testing.T) {
	// 模板方差为 0 时每个位置都是 1
	sm, err := Default.ScoreMap(noiseGray(9, 7, 19), solidGray(4, 3, 17))
	require.NoError(t, err)
	for _, v := range sm.Scores {
		assert.Equal(t, 1.0, v)
	}
}

func TestCCoeffNormedLargeTemplate(t *testing.T) {
	// 3e7 像素的模板，n*sumT2 超出 int64
	n := int64(30_000_000)
	tpl := templateStats{sumT: 127 * n, sumT2: 20000 * n}

	self := ccoeffNormed(n, tpl, tpl.sumT, tpl.sumT2, tpl.sumT2)
	assert.InDelta(t, 1.0, self, 1e-9)

	// 反相窗口 S = 255 - T
	sumS := 255*n - tpl.sumT
	sumS2 := 255*255*n - 2*255*tpl.sumT + tpl.sumT2
	sumTS := 255*tpl.sumT - tpl.sumT2
	assert.InDelta(t, -1.0, ccoeffNormed(n, tpl, sumS, sumS2, sumTS), 1e-9)
}

func TestMulDiff(t *testing.T) {
	tests := []struct {
		a, b, c, d int64
		want       float64
	}{
		{3, 4, 2, 5, 2},
		{2, 5, 3, 4, -2},
		{7, 7, 7, 7, 0},
		{math.MaxInt64, 4, math.MaxInt64, 3, math.MaxInt64},
		{math.MaxInt64, 3, math.MaxInt64, 4, -math.MaxInt64},
		{1 << 40, 1 << 40, 0, 0, 0x1p80},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mulDiff(tt.a, tt.b, tt.c, tt.d), "%d*%d - %d*%d", tt.a, tt.b, tt.c, tt.d)
	}
}

func TestCorrelateTemplateLarger(t *testing.T) {
	search := noiseGray(10, 10, 13)
	for _, size := range []image.Point{{11, 5}, {5, 11}, {11, 11}} {
		_, err := Correlate(search, noiseGray(size.X, size.Y, 14))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTemplateLargerThanSearchArea))

		var sizeErr *ImageSizeError
		require.True(t, errors.As(err, &sizeErr))
		assert.Equal(t, [2]int{10, 10}, sizeErr.SearchSize)
		assert.Equal(t, [2]int{size.X, size.Y}, sizeErr.TemplateSize)
	}
}

func TestCorrelateNonZeroOrigin(t *testing.T) {
	base := noiseGray(20, 20, 15)
	search := base.SubImage(image.Rect(5, 5, 20, 20)).(*image.Gray)
	template := base.SubImage(image.Rect(9, 12, 14, 16)).(*image.Gray)

	res, err := Correlate(search, template)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(4, 7), res.Location)
	assert.InDelta(t, 1.0, res.Score, 1e-6)
}

func TestCorrelateInvalidInput(t *testing.T) {
	_, err := Correlate(nil, solidGray(1, 1, 0))
	assert.Error(t, err)
	_, err = Correlate(solidGray(3, 3, 0), image.NewGray(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)
	_, err = New(Method(7)).Correlate(solidGray(3, 3, 0), solidGray(1, 1, 0))
	assert.Error(t, err)
}

func TestCCorrNormed(t *testing.T) {
	m := New(MethodCCorrNormed)
	search := noiseGray(20, 20, 16)
	template := subGray(search, image.Rect(3, 4, 9, 10))

	res, err := m.Correlate(search, template)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Score, 1e-6)

	black, err := m.Correlate(solidGray(4, 4, 0), solidGray(2, 2, 0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, black.Score)

	mixed := solidGray(4, 4, 0)
	mixed.SetGray(3, 3, color.Gray{Y: 200})
	res, err = m.Correlate(mixed, solidGray(2, 2, 0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Score)
	assert.Equal(t, image.Point{}, res.Location)
}

func BenchmarkCorrelate(b *testing.B) {
	search := noiseGray(320, 240, 17)
	template := noiseGray(24, 24, 18)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Correlate(search, template); err != nil {
			b.Fatal(err)
		}
	}
}
