// Пакет imaging — подготовка фотографии документа к конвертации в PDF:
// уменьшение до рабочего размера, перевод в оттенки серого и
// повышение контраста. Результат пишется рядом с исходным файлом.
package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // регистрация декодера PNG
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	// maxDimension — максимальная сторона обработанного изображения в пикселях.
	maxDimension = 2200

	// jpegQuality — качество итогового JPEG.
	jpegQuality = 90
)

// Processor — подготовка изображения документа.
type Processor interface {
	// Process обрабатывает изображение srcPath и возвращает путь к
	// результату. Если файл не удаётся декодировать, возвращается
	// исходный путь без ошибки: PDF соберётся из оригинала.
	Process(srcPath string) (string, error)
}

// DocumentProcessor — Processor по умолчанию.
type DocumentProcessor struct {
	logger *slog.Logger
}

// NewDocumentProcessor создаёт процессор с указанным логгером.
func NewDocumentProcessor(logger *slog.Logger) *DocumentProcessor {
	return &DocumentProcessor{logger: logger.With("component", "imaging")}
}

// Process реализует Processor.
func (p *DocumentProcessor) Process(srcPath string) (string, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия изображения %s: %w", srcPath, err)
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		// Нечитаемое изображение не считаем фатальным: оригинал
		// всё ещё может быть пригоден для PDF.
		p.logger.Warn("Не удалось декодировать изображение, используется оригинал",
			"path", srcPath, "error", err)
		return srcPath, nil
	}

	scaled := downscale(src)
	processed := enhance(scaled)

	dstPath := filepath.Join(filepath.Dir(srcPath), "processed.jpg")
	out, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("ошибка создания файла %s: %w", dstPath, err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, processed, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("ошибка кодирования JPEG: %w", err)
	}

	p.logger.Debug("Изображение обработано",
		"src", srcPath,
		"format", format,
		"width", processed.Bounds().Dx(),
		"height", processed.Bounds().Dy())
	return dstPath, nil
}

// downscale уменьшает изображение так, чтобы большая сторона не
// превышала maxDimension. Маленькие изображения не трогаем.
func downscale(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDimension && h <= maxDimension {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = maxDimension
		nh = h * maxDimension / w
	} else {
		nh = maxDimension
		nw = w * maxDimension / h
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// enhance переводит изображение в оттенки серого и растягивает
// гистограмму яркости на полный диапазон.
func enhance(src image.Image) image.Image {
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)

	lo, hi := uint8(255), uint8(0)
	for _, v := range gray.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return gray
	}

	scale := 255.0 / float64(hi-lo)
	for i, v := range gray.Pix {
		nv := float64(v-lo) * scale
		if nv > 255 {
			nv = 255
		}
		gray.Pix[i] = uint8(nv)
	}
	return gray
}
