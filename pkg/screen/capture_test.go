package screen

import (
	"errors"
	"testing"

	"github.com/zoeyai/shapeid/pkg/vision/imgproc"
)

func TestCheckRegion(t *testing.T) {
	tests := []struct {
		name    string
		region  imgproc.Region
		wantErr bool
	}{
		{"整屏", imgproc.NewRegion(0, 0, 1920, 1080), false},
		{"下半屏", imgproc.NewRegion(0, 540, 1920, 540), false},
		{"空区域", imgproc.NewRegion(10, 10, 0, 5), true},
		{"超出右边", imgproc.NewRegion(1900, 0, 40, 10), true},
		{"负坐标", imgproc.NewRegion(-1, 0, 10, 10), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkRegion(tt.region, 1920, 1080)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkRegion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, imgproc.ErrRegionOutOfBounds) {
				t.Errorf("错误应包装 ErrRegionOutOfBounds: %v", err)
			}
		})
	}
}

func TestCheckRegionUnknownScreen(t *testing.T) {
	// 获取不到屏幕尺寸时不做越界检查
	if err := checkRegion(imgproc.NewRegion(5000, 5000, 10, 10), 0, 0); err != nil {
		t.Errorf("屏幕尺寸未知时不应报错: %v", err)
	}
}
