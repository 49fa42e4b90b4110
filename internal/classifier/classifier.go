// Package classifier оборачивает предобученную модель классификации кожных поражений
// в один вызов Classify(изображение) -> название.
//
// Модель и таблица классов загружаются один раз при старте. После загрузки Classifier
// только читает свои данные, поэтому один экземпляр обслуживает параллельные запросы без блокировок.
package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	// Декодеры форматов регистрируются в image.Decode побочным эффектом импорта.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"skinscope/internal/common"

	"github.com/rs/zerolog/log"
)

// Model - предобученная модель: по нормализованному тензору CHW возвращает логиты классов.
type Model interface {
	NumClasses() int
	Predict(input []float32) ([]float32, error)
}

// DefaultMaxPixels - предел ширина×высота для входного изображения.
// Декодер выделяет буфер под все пиксели сразу, поэтому размер проверяется по заголовку до декодирования.
const DefaultMaxPixels = 40_000_000

// Classifier сопоставляет изображению название заболевания.
type Classifier struct {
	model     Model
	labels    []string
	loadErr   error
	maxPixels int64
}

// New собирает классификатор из уже загруженной модели и таблицы классов.
func New(model Model, labels []string) (*Classifier, error) {
	if model == nil {
		return nil, errors.New("модель не задана")
	}
	if model.NumClasses() != len(labels) {
		return nil, fmt.Errorf("модель выдаёт %d классов, а в таблице классов %d", model.NumClasses(), len(labels))
	}
	return &Classifier{model: model, labels: labels, maxPixels: DefaultMaxPixels}, nil
}

// WithMaxPixels задаёт предел ширина×высота. n <= 0 возвращает DefaultMaxPixels.
func (c *Classifier) WithMaxPixels(n int64) *Classifier {
	if n <= 0 {
		n = DefaultMaxPixels
	}
	c.maxPixels = n
	return c
}

// Load читает веса модели и таблицу классов с диска.
func Load(weightsPath, labelsPath string) (*Classifier, error) {
	model, err := LoadLinearHead(weightsPath)
	if err != nil {
		return nil, err
	}
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	c, err := New(model, labels)
	if err != nil {
		return nil, err
	}
	log.Info().Str("weights", weightsPath).Int("classes", len(labels)).Msg("Модель классификации загружена")
	return c, nil
}

// Disabled возвращает классификатор, который отклоняет каждый вызов с common.ErrModelUnavailable.
// Используется, когда артефакты модели не удалось загрузить при старте: повторных попыток нет.
func Disabled(reason error) *Classifier {
	if reason == nil {
		reason = errors.New("модель не загружена")
	}
	return &Classifier{loadErr: reason}
}

// Ready сообщает, загружена ли модель.
func (c *Classifier) Ready() bool {
	return c != nil && c.model != nil
}

// Classify декодирует изображение, прогоняет его через модель и возвращает название класса.
func (c *Classifier) Classify(ctx context.Context, data []byte) (string, error) {
	if !c.Ready() {
		var reason error
		if c != nil {
			reason = c.loadErr
		}
		return "", fmt.Errorf("%w: %v", common.ErrModelUnavailable, reason)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("не удалось прочитать заголовок изображения: %w: %v", common.ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > c.maxPixels {
		return "", fmt.Errorf("размер изображения %dx%d вне допустимого: %w", cfg.Width, cfg.Height, common.ErrInvalidImage)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("не удалось декодировать изображение: %w: %v", common.ErrInvalidImage, err)
	}

	logits, err := c.model.Predict(Preprocess(img))
	if err != nil {
		return "", fmt.Errorf("ошибка инференса: %w", err)
	}

	idx := argmax(logits)
	label := strings.ReplaceAll(c.labels[idx], "_", " ")
	log.Debug().Str("format", format).Int("class", idx).Str("label", label).Msg("Изображение классифицировано")
	return label, nil
}

func argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
