package classifier

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// LoadLabels читает таблицу "название класса -> индекс", сохранённую вместе с весами,
// и разворачивает её в срез, где позиция - индекс выхода модели.
// Индексы должны покрывать 0..n-1 без пропусков и повторов.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения таблицы классов %s: %w", path, err)
	}

	var classToIdx map[string]int
	if err := json.Unmarshal(data, &classToIdx); err != nil {
		return nil, fmt.Errorf("ошибка разбора таблицы классов %s: %w", path, err)
	}
	if len(classToIdx) == 0 {
		return nil, fmt.Errorf("таблица классов %s пуста", path)
	}

	labels := make([]string, len(classToIdx))
	for name, idx := range classToIdx {
		if idx < 0 || idx >= len(labels) {
			return nil, fmt.Errorf("класс %q: индекс %d вне диапазона 0..%d", name, idx, len(labels)-1)
		}
		if labels[idx] != "" {
			return nil, fmt.Errorf("индекс %d назначен и %q, и %q", idx, labels[idx], name)
		}
		labels[idx] = name
	}
	return labels, nil
}
