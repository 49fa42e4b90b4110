package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"skinscope/internal/common"
)

// ErrEmptyUpload - загружен пустой файл.
var ErrEmptyUpload = errors.New("empty file")

// ErrUploadTooLarge - файл больше разрешённого размера.
var ErrUploadTooLarge = errors.New("file too large")

// AllowedImageTypes - MIME-типы, которые пропускаем к классификатору.
// Тип определяется по содержимому, а не по расширению или заголовку клиента.
var AllowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/webp": true,
}

// ReadUploadedImage читает загруженный файл целиком и проверяет его реальный тип.
// Файл не по списку AllowedImageTypes даёт common.ErrInvalidImage.
func ReadUploadedImage(fileHeader *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть загруженный файл: %w", err)
	}
	defer file.Close()

	// Читаем на байт больше лимита, чтобы отличить "ровно лимит" от "больше лимита".
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать загруженный файл: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrUploadTooLarge
	}

	// DetectContentType смотрит не более чем на первые 512 байт.
	contentType := http.DetectContentType(data)
	if !AllowedImageTypes[contentType] {
		return nil, fmt.Errorf("недопустимый тип файла %s: %w", contentType, common.ErrInvalidImage)
	}
	return data, nil
}

// EncodeImageData кодирует изображение в base64 для ответа клиенту и хранения в истории.
func EncodeImageData(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
