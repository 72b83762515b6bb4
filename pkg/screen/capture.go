// Package screen 提供屏幕截图，作为识别的输入来源
package screen

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"

	"github.com/zoeyai/shapeid/pkg/vision/imgproc"
)

// CaptureScreen 截取全屏
func CaptureScreen() (image.Image, error) {
	img, err := robotgo.CaptureImg()
	if err != nil {
		return nil, fmt.Errorf("截屏失败: %w", err)
	}
	return img, nil
}

// CaptureRegion 截取屏幕区域
func CaptureRegion(r imgproc.Region) (image.Image, error) {
	w, h := GetScreenSize()
	if err := checkRegion(r, w, h); err != nil {
		return nil, err
	}
	img, err := robotgo.CaptureImg(r.X, r.Y, r.Width, r.Height)
	if err != nil {
		return nil, fmt.Errorf("截取区域失败: %w", err)
	}
	return img, nil
}

// GetScreenSize 获取屏幕尺寸
func GetScreenSize() (width, height int) {
	return robotgo.GetScreenSize()
}

// GetDisplayCount 获取显示器数量
func GetDisplayCount() int {
	return robotgo.DisplaysNum()
}

func checkRegion(r imgproc.Region, screenW, screenH int) error {
	if r.Empty() {
		return fmt.Errorf("%w: 截图区域为空 %s", imgproc.ErrRegionOutOfBounds, r)
	}
	if screenW > 0 && screenH > 0 && !r.Within(screenW, screenH) {
		return fmt.Errorf("%w: %s 超出屏幕 %dx%d", imgproc.ErrRegionOutOfBounds, r, screenW, screenH)
	}
	return nil
}
