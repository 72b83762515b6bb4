package cv

import (
	"errors"
	"image"
	"math/rand/v2"
	"testing"

	"github.com/zoeyai/shapeid/pkg/vision/ncc"
)

func noiseGray(w, h int, seed uint64) *image.Gray {
	r := rand.New(rand.NewPCG(seed, seed+1))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.IntN(256))
	}
	return img
}

func TestMatcherAgreesWithNCC(t *testing.T) {
	search := noiseGray(60, 40, 1)
	template := search.SubImage(image.Rect(21, 13, 33, 22)).(*image.Gray)

	for _, method := range []ncc.Method{ncc.MethodCCoeffNormed, ncc.MethodCCorrNormed} {
		want, err := ncc.New(method).Correlate(search, template)
		if err != nil {
			t.Fatalf("ncc 匹配失败: %v", err)
		}
		got, err := NewMatcher(method).Correlate(search, template)
		if err != nil {
			t.Fatalf("OpenCV 匹配失败: %v", err)
		}

		t.Logf("%v: ncc=(%v, %.6f) opencv=(%v, %.6f)", method, want.Location, want.Score, got.Location, got.Score)
		if got.Location != want.Location {
			t.Errorf("%v: 位置不一致, 期望 %v, 实际 %v", method, want.Location, got.Location)
		}
		// OpenCV 结果矩阵为 float32
		if d := got.Score - want.Score; d > 1e-4 || d < -1e-4 {
			t.Errorf("%v: 置信度差异过大: %.6f vs %.6f", method, got.Score, want.Score)
		}
	}
}

func TestMatcherTemplateLarger(t *testing.T) {
	_, err := NewMatcher(ncc.MethodCCoeffNormed).Correlate(noiseGray(8, 8, 2), noiseGray(9, 4, 3))
	if !errors.Is(err, ncc.ErrTemplateLargerThanSearchArea) {
		t.Errorf("应返回 ErrTemplateLargerThanSearchArea, 实际 %v", err)
	}
}

func TestMatcherUnknownMethod(t *testing.T) {
	if _, err := NewMatcher(ncc.Method(42)).Correlate(noiseGray(4, 4, 4), noiseGray(2, 2, 5)); err == nil {
		t.Error("未知方法应报错")
	}
}

func TestGrayMatRoundTrip(t *testing.T) {
	src := noiseGray(7, 5, 6)
	mat, err := GrayToMat(src)
	if err != nil {
		t.Fatalf("转换失败: %v", err)
	}
	defer mat.Close()

	if mat.Cols() != 7 || mat.Rows() != 5 || mat.Channels() != 1 {
		t.Fatalf("Mat 尺寸错误: %dx%d, 通道 %d", mat.Cols(), mat.Rows(), mat.Channels())
	}

	back, err := MatToGray(mat)
	if err != nil {
		t.Fatalf("转换失败: %v", err)
	}
	for i := range src.Pix {
		if back.Pix[i] != src.Pix[i] {
			t.Fatalf("像素 %d 不一致: %d vs %d", i, back.Pix[i], src.Pix[i])
		}
	}
}

func TestNewCorrelator(t *testing.T) {
	tests := []struct {
		backend Backend
		wantErr bool
	}{
		{BackendNCC, false},
		{"", false},
		{BackendOpenCV, false},
		{"sift", true},
	}

	for _, tt := range tests {
		c, err := NewCorrelator(tt.backend, ncc.MethodCCoeffNormed)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			var ube *UnknownBackendError
			if !errors.As(err, &ube) || ube.Backend != string(tt.backend) {
				t.Errorf("%q: 应返回 UnknownBackendError, 实际 %v", tt.backend, err)
			}
			continue
		}
		if _, err := c.Correlate(noiseGray(10, 10, 7), noiseGray(3, 3, 8)); err != nil {
			t.Errorf("%q: 匹配失败: %v", tt.backend, err)
		}
	}
}
