// Package imgproc 提供模板匹配前的图像预处理
//
// 包括灰度转换、区域裁剪以及彩色副本生成。所有函数都返回新分配的图像，
// 不会修改输入。
package imgproc

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

var (
	// ErrInvalidImage 图像为空或尺寸为 0
	ErrInvalidImage = errors.New("无效图像")
	// ErrRegionOutOfBounds 区域超出图像范围
	ErrRegionOutOfBounds = errors.New("区域超出图像范围")
)

// 与 OpenCV RGBA2GRAY 相同的定点系数 (yuv_shift = 14)
const (
	grayShift = 14
	grayR     = 4899
	grayG     = 9617
	grayB     = 1868
	grayRound = 1 << (grayShift - 1)
)

// Luma 计算单个像素的亮度值
func Luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*grayR + uint32(g)*grayG + uint32(b)*grayB + grayRound) >> grayShift)
}

// Validate 检查图像是否可用
func Validate(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: 图像为 nil", ErrInvalidImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("%w: 尺寸 %dx%d", ErrInvalidImage, b.Dx(), b.Dy())
	}
	return nil
}

// ToGrayscale 转换为灰度图
// 返回的图像原点为 (0,0)，宽高与输入一致
func ToGrayscale(img image.Image) (*image.Gray, error) {
	if err := Validate(img); err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], src.Pix[off:off+w])
		}
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				i := off + x*4
				row[x] = Luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			}
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				i := off + x*4
				if src.Pix[i+3] == 0xff {
					row[x] = Luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
					continue
				}
				// 预乘 alpha，需要先还原
				c := color.NRGBAModel.Convert(src.RGBAAt(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				row[x] = Luma(c.R, c.G, c.B)
			}
		}
	default:
		for y := 0; y < h; y++ {
			row := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				row[x] = Luma(c.R, c.G, c.B)
			}
		}
	}
	return dst, nil
}

// CropRegion 裁剪图像
// r 使用以图像左上角为原点的局部坐标，返回的图像原点为 (0,0)。
// 当 r 覆盖整张图像且原点已是 (0,0) 时直接返回原图。
func CropRegion(img image.Image, r Region) (image.Image, error) {
	if err := Validate(img); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if !r.Within(b.Dx(), b.Dy()) {
		return nil, fmt.Errorf("%w: %s 不在 %dx%d 内", ErrRegionOutOfBounds, r, b.Dx(), b.Dy())
	}
	if r == FullRegion(img) && b.Min == (image.Point{}) {
		return img, nil
	}
	dst := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(dst, dst.Bounds(), img, b.Min.Add(image.Pt(r.X, r.Y)), draw.Src)
	return dst, nil
}

// CloneRGBA 复制为 RGBA 彩色图像，原点为 (0,0)
func CloneRGBA(img image.Image) (*image.RGBA, error) {
	if err := Validate(img); err != nil {
		return nil, err
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

// Size 返回图像宽高
func Size(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}
