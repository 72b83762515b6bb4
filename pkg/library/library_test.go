package library

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, SaveImage(path, img))
}

func TestLoadDirSortedByName(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "zeta.png"), square(3, 3, color.NRGBA{R: 255, A: 255}))
	writeImage(t, filepath.Join(dir, "alpha.png"), square(4, 2, color.NRGBA{G: 255, A: 255}))
	writeImage(t, filepath.Join(dir, "mid.jpg"), square(5, 5, color.NRGBA{B: 255, A: 255}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0755))

	entries, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, "mid", entries[1].Name)
	assert.Equal(t, "zeta", entries[2].Name)
	assert.Equal(t, image.Rect(0, 0, 4, 2), entries[0].Image.Bounds())
}

func TestLoadManifestKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "shapes", "a.png"), square(2, 2, color.NRGBA{A: 255}))
	writeImage(t, filepath.Join(dir, "shapes", "b.png"), square(3, 3, color.NRGBA{A: 255}))

	manifest := `templates:
  - name: second
    path: shapes/b.png
  - path: shapes/a.png
`
	path := filepath.Join(dir, "library.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))

	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Name)
	assert.Equal(t, image.Rect(0, 0, 3, 3), entries[0].Image.Bounds())
	assert.Equal(t, "a", entries[1].Name)
}

func TestLoadManifestErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("templates: []\n"), 0644))
	_, err := LoadManifest(empty)
	assert.True(t, errors.Is(err, ErrEmptyManifest))

	missing := filepath.Join(dir, "missing.yml")
	require.NoError(t, os.WriteFile(missing, []byte("templates:\n  - name: ghost\n    path: ghost.png\n"), 0644))
	_, err = Load(missing)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	noPath := filepath.Join(dir, "nopath.yaml")
	require.NoError(t, os.WriteFile(noPath, []byte("templates:\n  - name: x\n"), 0644))
	_, err = LoadManifest(noPath)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("templates: [\n"), 0644))
	_, err = LoadManifest(bad)
	assert.Error(t, err)
}

func TestLoadSingleImageAndUnknown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "circle.png")
	writeImage(t, path, square(6, 6, color.NRGBA{R: 10, A: 255}))

	entries, err := Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "circle", entries[0].Name)

	other := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(other, []byte("1,2"), 0644))
	_, err = Load(other)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "nope"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDecodeAndEncode(t *testing.T) {
	src := square(7, 4, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	data, err := EncodePNG(src)
	require.NoError(t, err)

	img, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), img.Bounds())
	assert.Equal(t, color.NRGBAModel.Convert(src.At(3, 2)), color.NRGBAModel.Convert(img.At(3, 2)))

	_, err = Decode(nil)
	assert.Error(t, err)
	_, err = Decode([]byte("not an image"))
	assert.Error(t, err)
	_, err = EncodePNG(nil)
	assert.Error(t, err)
}

// pngHeader 只包含签名和 IHDR 的 PNG，声明任意尺寸
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // 位深
	ihdr[9] = 2 // RGB
	chunk := append([]byte("IHDR"), ihdr...)
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeRejectsHugeDimensions(t *testing.T) {
	_, err := Decode(pngHeader(100000, 100000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageTooLarge))

	// 宽或高单独过大同样拒绝
	_, err = Decode(pngHeader(1<<30, 1))
	assert.True(t, errors.Is(err, ErrImageTooLarge))

	// 尺寸合法但数据不完整，返回普通解码错误
	_, err = Decode(pngHeader(4, 4))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrImageTooLarge))
}

func TestDecodeRespectsLimit(t *testing.T) {
	data, err := EncodePNG(image.NewGray(image.Rect(0, 0, 10, 10)))
	require.NoError(t, err)

	old := MaxImagePixels
	t.Cleanup(func() { MaxImagePixels = old })

	MaxImagePixels = 100
	_, err = Decode(data)
	assert.NoError(t, err)

	MaxImagePixels = 99
	_, err = Decode(data)
	assert.True(t, errors.Is(err, ErrImageTooLarge))
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.bmp", "d.tiff", "e.webp", "f.gif"} {
		assert.True(t, IsImageFile(name), name)
	}
	for _, name := range []string{"a.txt", "b", "c.yaml"} {
		assert.False(t, IsImageFile(name), name)
	}
}
