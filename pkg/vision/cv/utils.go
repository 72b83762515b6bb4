package cv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/zoeyai/shapeid/pkg/vision/imgproc"
)

// GrayToMat 将 *image.Gray 转换为单通道 gocv.Mat
func GrayToMat(img *image.Gray) (gocv.Mat, error) {
	// SubImage 的 Pix 不连续，先复制到原点为 (0,0) 的图像
	if img.Bounds().Min != (image.Point{}) || img.Stride != img.Bounds().Dx() {
		copied, err := imgproc.ToGrayscale(img)
		if err != nil {
			return gocv.Mat{}, err
		}
		img = copied
	}
	mat, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("灰度图转换失败: %w", err)
	}
	return mat, nil
}

// MatToGray 将单通道 gocv.Mat 转换为 *image.Gray
func MatToGray(mat gocv.Mat) (*image.Gray, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("Mat 为空")
	}
	if mat.Channels() != 1 {
		return nil, fmt.Errorf("Mat 通道数为 %d, 期望 1", mat.Channels())
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("Mat 转换失败: %w", err)
	}
	return imgproc.ToGrayscale(img)
}
