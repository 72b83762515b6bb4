// Package library 加载模板库
//
// 模板库可以是一个图片目录（按文件名排序，名称为去掉扩展名的文件名），
// 也可以是一个 YAML 清单，按清单顺序列出名称和路径:
//
//	templates:
//	  - name: circle
//	    path: shapes/circle.png
//	  - name: square
//	    path: shapes/square.bmp
package library

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gopkg.in/yaml.v3"

	"github.com/zoeyai/shapeid/pkg/shapeid"
)

// ErrEmptyManifest 清单中没有模板
var ErrEmptyManifest = errors.New("模板清单为空")

// ErrImageTooLarge 图片声明的尺寸超过上限
var ErrImageTooLarge = errors.New("图片尺寸超过上限")

// MaxImagePixels 解码前按文件头检查的像素上限，足够容纳 8K 截图
var MaxImagePixels int64 = 1 << 26

// 支持的图片扩展名
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile 根据扩展名判断是否为支持的图片
func IsImageFile(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// Manifest YAML 模板清单
type Manifest struct {
	Templates []ManifestEntry `yaml:"templates"`
}

// ManifestEntry 清单条目
type ManifestEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Load 根据路径类型加载模板库：目录或 .yaml/.yml 清单
func Load(path string) ([]shapeid.Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "模板库 %s", path)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadManifest(path)
	}
	if IsImageFile(path) {
		img, err := LoadImage(path)
		if err != nil {
			return nil, err
		}
		return []shapeid.Entry{{Name: entryName(path), Image: img}}, nil
	}
	return nil, errors.Errorf("无法识别的模板库: %s", path)
}

// LoadDir 加载目录下所有图片，按文件名排序
// 不递归子目录，忽略非图片文件
func LoadDir(dir string) ([]shapeid.Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "读取模板目录失败: %s", dir)
	}

	var names []string
	for _, f := range files {
		if f.IsDir() || !IsImageFile(f.Name()) {
			continue
		}
		names = append(names, f.Name())
	}
	sort.Strings(names)

	entries := make([]shapeid.Entry, 0, len(names))
	for _, name := range names {
		img, err := LoadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		entries = append(entries, shapeid.Entry{Name: entryName(name), Image: img})
	}
	return entries, nil
}

// LoadManifest 按 YAML 清单顺序加载模板
// 相对路径相对于清单所在目录
func LoadManifest(path string) ([]shapeid.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取模板清单失败: %s", path)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrapf(err, "解析模板清单失败: %s", path)
	}
	if len(manifest.Templates) == 0 {
		return nil, errors.Wrap(ErrEmptyManifest, path)
	}

	base := filepath.Dir(path)
	entries := make([]shapeid.Entry, 0, len(manifest.Templates))
	for i, item := range manifest.Templates {
		if item.Path == "" {
			return nil, errors.Errorf("模板清单 %s 第 %d 项缺少 path", path, i+1)
		}
		imgPath := item.Path
		if !filepath.IsAbs(imgPath) {
			imgPath = filepath.Join(base, imgPath)
		}
		img, err := LoadImage(imgPath)
		if err != nil {
			return nil, errors.Wrapf(err, "模板清单第 %d 项", i+1)
		}
		name := item.Name
		if name == "" {
			name = entryName(imgPath)
		}
		entries = append(entries, shapeid.Entry{Name: name, Image: img})
	}
	return entries, nil
}

// LoadImage 读取并解码图片文件
func LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取图片失败: %s", path)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "解码图片失败: %s", path)
	}
	return img, nil
}

// Decode 解码内存中的图片数据，先读取文件头检查尺寸
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("图片数据为空")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Errorf("图片尺寸无效: %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, errors.Wrapf(ErrImageTooLarge, "%dx%d 超过 %d 像素", cfg.Width, cfg.Height, MaxImagePixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return img, nil
}

// EncodePNG 编码为 PNG
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("图像为空")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "PNG 编码失败")
	}
	return buf.Bytes(), nil
}

// SaveImage 保存图片，扩展名为 .jpg/.jpeg 时保存为 JPEG，其余保存为 PNG
func SaveImage(path string, img image.Image) error {
	if img == nil {
		return errors.New("图像为空")
	}

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
			return errors.Wrap(err, "JPEG 编码失败")
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return errors.Wrap(err, "PNG 编码失败")
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "创建输出目录失败: %s", dir)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "写入图片失败: %s", path)
	}
	return nil
}

func entryName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
