package recordstore

import (
	"strings"

	"github.com/bigkaa/carepoint/internal/domain/fault"
	"github.com/bigkaa/carepoint/internal/domain/model"
	"github.com/bigkaa/carepoint/internal/storage/texttable"
)

// Schema — отображение заголовка источника на колонки набора.
// Варианты различаются только отображением, алгоритм загрузки общий.
type Schema interface {
	// Name — имя варианта для логов и ошибок.
	Name() string
	// Marker — подстрока нормализованной строки, по которой ищется заголовок.
	Marker() string
	// Map строит отображение по ячейкам строки заголовка.
	Map(headerCells []string) (*Mapping, error)
}

// Mapping — результат сопоставления заголовка.
type Mapping struct {
	// Header — колонки набора в порядке записи, всегда со status в конце или на месте из источника
	Header []string
	// Source — индекс ячейки источника для каждой колонки Header, -1 если колонки нет
	Source []int
	// IDColumn — колонка идентификатора
	IDColumn string
}

// StatusIndex возвращает позицию колонки status в Header.
func (m *Mapping) StatusIndex() int {
	for i, c := range m.Header {
		if c == model.StatusColumn {
			return i
		}
	}
	return -1
}

// appendStatus добавляет колонку status, если её нет.
func (m *Mapping) appendStatus() {
	if m.StatusIndex() >= 0 {
		return
	}
	m.Header = append(m.Header, model.StatusColumn)
	m.Source = append(m.Source, -1)
}

// VariantA — заголовок берётся из источника как есть.
// Колонка идентификатора — первая, чьё нормализованное имя содержит "numeroid".
type VariantA struct{}

// Name реализует Schema.
func (VariantA) Name() string { return "variant-a" }

// Marker реализует Schema.
func (VariantA) Marker() string { return "numeroid" }

// Map реализует Schema. Пустые имена колонок пропускаются, при повторе
// имени остаётся первое вхождение. Колонка status распознаётся без учёта регистра.
func (v VariantA) Map(headerCells []string) (*Mapping, error) {
	m := &Mapping{}
	seen := make(map[string]bool, len(headerCells))

	for i, cell := range headerCells {
		name := strings.TrimSpace(texttable.StripBOM(cell))
		if name == "" {
			continue
		}
		if strings.EqualFold(name, model.StatusColumn) {
			name = model.StatusColumn
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		m.Header = append(m.Header, name)
		m.Source = append(m.Source, i)

		if m.IDColumn == "" && strings.Contains(texttable.Normalize(name), v.Marker()) {
			m.IDColumn = name
		}
	}

	if m.IDColumn == "" {
		return nil, fault.Format("%s: колонка идентификатора не найдена в заголовке", v.Name())
	}

	m.appendStatus()
	return m, nil
}

// VariantB — фиксированный набор колонок, искомых в источнике без учёта регистра.
// Лишние колонки источника отбрасываются, отсутствующие дают пустые поля.
type VariantB struct{}

// Name реализует Schema.
func (VariantB) Name() string { return "variant-b" }

// Marker реализует Schema.
func (VariantB) Marker() string { return "numero_id" }

// Map реализует Schema.
func (v VariantB) Map(headerCells []string) (*Mapping, error) {
	lookup := func(name string) int {
		for i, cell := range headerCells {
			if strings.EqualFold(strings.TrimSpace(texttable.StripBOM(cell)), name) {
				return i
			}
		}
		return -1
	}

	m := &Mapping{IDColumn: model.ColNumeroID}
	for _, col := range model.ActivityColumns {
		m.Header = append(m.Header, col)
		m.Source = append(m.Source, lookup(col))
	}

	if m.Source[indexOf(m.Header, model.ColNumeroID)] < 0 {
		return nil, fault.Format("%s: колонка %s не найдена в заголовке", v.Name(), model.ColNumeroID)
	}

	m.Header = append(m.Header, model.StatusColumn)
	m.Source = append(m.Source, lookup(model.StatusColumn))
	return m, nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
