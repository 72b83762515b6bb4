package imgproc

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
)

// ErrUnknownArea 未知的搜索区域
var ErrUnknownArea = errors.New("未知搜索区域")

// Region 表示图像中的矩形区域 (左上角 + 宽高)
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewRegion 创建区域
func NewRegion(x, y, w, h int) Region {
	return Region{X: x, Y: y, Width: w, Height: h}
}

// FullRegion 返回覆盖整张图像的区域
func FullRegion(img image.Image) Region {
	w, h := Size(img)
	return Region{Width: w, Height: h}
}

// Rect 转换为 image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty 宽或高为 0
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within 检查区域是否完整落在 w x h 的图像内
func (r Region) Within(w, h int) bool {
	if r.X < 0 || r.Y < 0 || r.Width < 0 || r.Height < 0 {
		return false
	}
	return r.X+r.Width <= w && r.Y+r.Height <= h
}

// ParseRegion 解析 "x,y,w,h" 格式的区域
func ParseRegion(s string) (Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("区域格式应为 x,y,w,h: %q", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("区域格式应为 x,y,w,h: %q", s)
		}
		v[i] = n
	}
	r := NewRegion(v[0], v[1], v[2], v[3])
	if r.X < 0 || r.Y < 0 || r.Empty() {
		return Region{}, fmt.Errorf("%w: %s", ErrRegionOutOfBounds, r)
	}
	return r, nil
}

func (r Region) String() string {
	return fmt.Sprintf("Region(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// Area 搜索区域
type Area int

const (
	// AreaFull 整张图像（默认）
	AreaFull Area = iota
	// AreaTopHalf 上半部分，高度 H/2
	AreaTopHalf
	// AreaBottomHalf 下半部分，从 H/2 开始，奇数高度时包含多出的一行
	AreaBottomHalf
)

// ParseArea 解析区域字符串 (full / top / bottom，大小写不敏感)
func ParseArea(s string) (Area, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return AreaFull, nil
	case "top", "tophalf", "top_half":
		return AreaTopHalf, nil
	case "bottom", "bottomhalf", "bottom_half":
		return AreaBottomHalf, nil
	default:
		return AreaFull, fmt.Errorf("%w: %q", ErrUnknownArea, s)
	}
}

func (a Area) String() string {
	switch a {
	case AreaFull:
		return "full"
	case AreaTopHalf:
		return "top"
	case AreaBottomHalf:
		return "bottom"
	default:
		return fmt.Sprintf("Area(%d)", int(a))
	}
}

// Valid 是否为已知区域
func (a Area) Valid() bool {
	return a >= AreaFull && a <= AreaBottomHalf
}

// Region 计算 w x h 图像上的搜索区域
func (a Area) Region(w, h int) (Region, error) {
	switch a {
	case AreaFull:
		return Region{Width: w, Height: h}, nil
	case AreaTopHalf:
		return Region{Width: w, Height: h / 2}, nil
	case AreaBottomHalf:
		return Region{Y: h / 2, Width: w, Height: h - h/2}, nil
	default:
		return Region{}, fmt.Errorf("%w: %d", ErrUnknownArea, int(a))
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (a Area) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownArea, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (a *Area) UnmarshalText(text []byte) error {
	v, err := ParseArea(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
