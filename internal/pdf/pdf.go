// Пакет pdf — сборка одностраничного PDF из изображения документа.
package pdf

import (
	"fmt"
	"image"
	_ "image/jpeg" // регистрация декодера JPEG
	_ "image/png"  // регистрация декодера PNG
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Размеры страницы A4 в миллиметрах и поле по краям.
const (
	pageWidth  = 210.0
	pageHeight = 297.0
	margin     = 10.0
)

// Renderer — сборка PDF из изображения.
type Renderer interface {
	// Render помещает изображение imagePath на страницу A4 и пишет
	// результат в dstPath.
	Render(imagePath, dstPath string) error
}

// A4Renderer — Renderer по умолчанию: одна страница A4, изображение
// вписывается в поля с сохранением пропорций.
type A4Renderer struct{}

// NewA4Renderer создаёт A4Renderer.
func NewA4Renderer() *A4Renderer {
	return &A4Renderer{}
}

// Render реализует Renderer.
func (r *A4Renderer) Render(imagePath, dstPath string) error {
	w, h, err := imageSize(imagePath)
	if err != nil {
		return err
	}

	maxW := pageWidth - 2*margin
	maxH := pageHeight - 2*margin

	// Вписываем изображение в доступную область.
	drawW := maxW
	drawH := drawW * float64(h) / float64(w)
	if drawH > maxH {
		drawH = maxH
		drawW = drawH * float64(w) / float64(h)
	}
	x := (pageWidth - drawW) / 2
	y := (pageHeight - drawH) / 2

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.ImageOptions(imagePath, x, y, drawW, drawH, false,
		gofpdf.ImageOptions{ImageType: imageType(imagePath), ReadDpi: false}, 0, "")

	if err := doc.OutputFileAndClose(dstPath); err != nil {
		return fmt.Errorf("ошибка записи PDF %s: %w", dstPath, err)
	}
	return nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка открытия изображения %s: %w", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка декодирования изображения %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

func imageType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "PNG"
	default:
		return "JPG"
	}
}
