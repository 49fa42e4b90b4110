package classifier

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// LinearHead - классификационная голова поверх признаков, усреднённых по сетке Pool×Pool
// в каждом канале. Веса экспортируются из обученной модели в JSON:
//
//	{"pool": 7, "weights": [[...], ...], "bias": [...]}
//
// weights - по строке на класс, в строке 3*pool*pool чисел.
type LinearHead struct {
	Pool    int         `json:"pool"`
	Weights [][]float32 `json:"weights"`
	Bias    []float32   `json:"bias"`
}

// LoadLinearHead читает и проверяет файл весов.
func LoadLinearHead(path string) (*LinearHead, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения весов модели %s: %w", path, err)
	}
	var head LinearHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("ошибка разбора весов модели %s: %w", path, err)
	}
	if err := head.validate(); err != nil {
		return nil, fmt.Errorf("некорректные веса модели %s: %w", path, err)
	}
	return &head, nil
}

func (h *LinearHead) validate() error {
	if h.Pool <= 0 || h.Pool > InputSize {
		return fmt.Errorf("pool должен быть в диапазоне 1..%d, получено %d", InputSize, h.Pool)
	}
	if len(h.Weights) == 0 {
		return fmt.Errorf("нет ни одного класса")
	}
	if len(h.Bias) != len(h.Weights) {
		return fmt.Errorf("bias: %d значений на %d классов", len(h.Bias), len(h.Weights))
	}
	features := h.featureCount()
	for i, row := range h.Weights {
		if len(row) != features {
			return fmt.Errorf("класс %d: %d весов, ожидалось %d", i, len(row), features)
		}
	}
	return nil
}

func (h *LinearHead) featureCount() int {
	return 3 * h.Pool * h.Pool
}

// NumClasses возвращает число классов.
func (h *LinearHead) NumClasses() int {
	return len(h.Weights)
}

// Predict считает логиты по тензору из Preprocess.
func (h *LinearHead) Predict(input []float32) ([]float32, error) {
	if len(input) != 3*InputSize*InputSize {
		return nil, fmt.Errorf("размер входа %d, ожидалось %d", len(input), 3*InputSize*InputSize)
	}
	features := h.pool(input)

	logits := make([]float32, len(h.Weights))
	for k, row := range h.Weights {
		sum := h.Bias[k]
		for i, w := range row {
			sum += w * features[i]
		}
		logits[k] = sum
	}
	return logits, nil
}

// pool усредняет каждый канал по ячейкам сетки Pool×Pool.
// Границы ячеек считаются целочисленно, так что InputSize не обязан делиться на Pool.
func (h *LinearHead) pool(input []float32) []float32 {
	p := h.Pool
	plane := InputSize * InputSize
	out := make([]float32, 0, h.featureCount())
	for ch := 0; ch < 3; ch++ {
		base := input[ch*plane : (ch+1)*plane]
		for gy := 0; gy < p; gy++ {
			y0, y1 := gy*InputSize/p, (gy+1)*InputSize/p
			for gx := 0; gx < p; gx++ {
				x0, x1 := gx*InputSize/p, (gx+1)*InputSize/p
				var sum float32
				for y := y0; y < y1; y++ {
					for x := x0; x < x1; x++ {
						sum += base[y*InputSize+x]
					}
				}
				out = append(out, sum/float32((y1-y0)*(x1-x0)))
			}
		}
	}
	return out
}
