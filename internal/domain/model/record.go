// Пакет model — доменные модели: записи наборов данных, идентичность
// устройства, полезная нагрузка валидации.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StatusColumn — синтетическая колонка отметки «обработано».
// Присутствует в заголовке каждого загруженного набора.
const StatusColumn = "status"

// DatasetTag — метка набора данных.
type DatasetTag string

const (
	// DatasetA — выгрузка первой системы (заголовок берётся как есть)
	DatasetA DatasetTag = "A"
	// DatasetB — выгрузка второй системы (фиксированный набор колонок)
	DatasetB DatasetTag = "B"
)

// AllDatasets возвращает метки всех наборов в порядке опроса.
func AllDatasets() []DatasetTag {
	return []DatasetTag{DatasetA, DatasetB}
}

// ParseDatasetTag преобразует строку в DatasetTag без учёта регистра.
func ParseDatasetTag(s string) (DatasetTag, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(DatasetA):
		return DatasetA, nil
	case string(DatasetB):
		return DatasetB, nil
	default:
		return "", fmt.Errorf("неизвестный набор данных: %q, допустимые: A, B", s)
	}
}

// Record — одна строка набора данных: колонка → значение.
// Ключи совпадают с заголовком набора. Изменяемо только поле status.
type Record struct {
	columns []string
	values  map[string]string
}

// NewRecord создаёт запись по заголовку и ячейкам, выровненным по позиции.
// Недостающие ячейки становятся пустыми строками, лишние отбрасываются.
func NewRecord(columns []string, cells []string) Record {
	values := make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(cells) {
			values[col] = cells[i]
		} else {
			values[col] = ""
		}
	}
	return Record{columns: columns, values: values}
}

// Get возвращает значение колонки. ok=false, если такой колонки в наборе нет:
// опечатка в имени колонки видна вызывающему коду.
func (r Record) Get(column string) (string, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Value возвращает значение колонки или пустую строку.
func (r Record) Value(column string) string {
	return r.values[column]
}

// Status возвращает отметку «обработано».
func (r Record) Status() bool {
	return ParseStatus(r.values[StatusColumn])
}

// SetStatus меняет отметку «обработано».
func (r *Record) SetStatus(v bool) {
	r.values[StatusColumn] = FormatStatus(v)
}

// Columns возвращает заголовок набора (копия).
func (r Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Cells возвращает значения в порядке заголовка.
func (r Record) Cells() []string {
	out := make([]string, len(r.columns))
	for i, col := range r.columns {
		out[i] = r.values[col]
	}
	return out
}

// Fields возвращает копию всех значений.
func (r Record) Fields() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Clone возвращает независимую копию записи.
func (r Record) Clone() Record {
	return Record{columns: r.columns, values: r.Fields()}
}

// MarshalJSON сериализует запись как объект колонка → значение.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.values)
}

// ParseStatus разбирает значение колонки status. Пустое и нераспознанное
// значение считается false.
func ParseStatus(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && v
}

// FormatStatus сериализует отметку в "true"/"false".
func FormatStatus(v bool) string {
	return strconv.FormatBool(v)
}
