// Пакет recordstore — офлайн-хранилище записей наборов данных.
//
// Dataset — явный дескриптор одного набора: заголовок, путь к файлу,
// разделитель, срок годности и записи в памяти. Хранилище не проверяет
// доверие к устройству и сроки: это ответственность вызывающего кода.
//
// Persist перезаписывает файл-источник целиком без temp+rename:
// сбой посреди записи может испортить файл. Export пишет атомарно.
package recordstore

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/carepoint/internal/domain/fault"
	"github.com/bigkaa/carepoint/internal/domain/model"
	"github.com/bigkaa/carepoint/internal/storage/filestore"
	"github.com/bigkaa/carepoint/internal/storage/texttable"
)

// Dataset — набор записей одного источника.
type Dataset struct {
	tag    model.DatasetTag
	schema Schema
	now    func() time.Time

	mu        sync.RWMutex
	path      string
	delimiter rune
	encoding  texttable.Encoding
	header    []string
	idColumn  string
	records   []model.Record
	expiresAt *time.Time
}

// Option — параметр конструктора Dataset.
type Option func(*Dataset)

// WithClock задаёт источник текущего времени (для имён выгрузки).
func WithClock(now func() time.Time) Option {
	return func(d *Dataset) {
		d.now = now
	}
}

// New создаёт пустой набор с указанной схемой.
func New(tag model.DatasetTag, schema Schema, opts ...Option) *Dataset {
	d := &Dataset{
		tag:       tag,
		schema:    schema,
		now:       time.Now,
		delimiter: texttable.Comma,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// parsed — результат разбора файла до подмены состояния набора.
type parsed struct {
	header    []string
	idColumn  string
	delimiter rune
	encoding  texttable.Encoding
	records   []model.Record
}

// Load читает файл и заменяет заголовок и записи набора.
// Возвращает количество записей.
//
// Ошибки:
//   - NOT_FOUND — файла нет
//   - FORMAT_ERROR — не найден заголовок или нет ни одной записи
//
// При любой ошибке набор очищается: частичное состояние не сохраняется.
// При успехе заголовок и записи подменяются одним присваиванием под блокировкой.
func (d *Dataset) Load(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		d.clear()
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fault.Wrap(fault.KindNotFound,
				fmt.Sprintf("файл набора %s не найден: %s", d.tag, path), err)
		}
		return 0, fmt.Errorf("чтение файла набора %s: %w", d.tag, err)
	}

	p, err := parse(raw, d.schema)
	if err != nil {
		d.clear()
		return 0, err
	}

	d.mu.Lock()
	d.path = path
	d.header = p.header
	d.idColumn = p.idColumn
	d.delimiter = p.delimiter
	d.encoding = p.encoding
	d.records = p.records
	d.mu.Unlock()

	return len(p.records), nil
}

// parse разбирает содержимое файла по схеме.
func parse(raw []byte, schema Schema) (*parsed, error) {
	lines, enc := texttable.Decode(raw)

	headerIdx := -1
	for i, line := range lines {
		if strings.Contains(texttable.Normalize(line), schema.Marker()) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, fault.Format("%s: строка заголовка с маркером %q не найдена", schema.Name(), schema.Marker())
	}

	delim := texttable.DetectDelimiter(lines[headerIdx])
	mapping, err := schema.Map(texttable.SplitRow(lines[headerIdx], delim))
	if err != nil {
		return nil, err
	}
	statusIdx := mapping.StatusIndex()

	records := make([]model.Record, 0, len(lines)-headerIdx-1)
	for _, line := range lines[headerIdx+1:] {
		if texttable.IsBlank(line) {
			continue
		}
		cells := texttable.SplitRow(line, delim)

		out := make([]string, len(mapping.Header))
		for j, src := range mapping.Source {
			if src >= 0 && src < len(cells) {
				out[j] = cells[src]
			}
		}
		out[statusIdx] = model.FormatStatus(model.ParseStatus(out[statusIdx]))

		records = append(records, model.NewRecord(mapping.Header, out))
	}

	if len(records) == 0 {
		return nil, fault.Format("%s: после заголовка нет ни одной записи", schema.Name())
	}

	return &parsed{
		header:    mapping.Header,
		idColumn:  mapping.IDColumn,
		delimiter: delim,
		encoding:  enc,
		records:   records,
	}, nil
}

func (d *Dataset) clear() {
	d.mu.Lock()
	d.path = ""
	d.header = nil
	d.idColumn = ""
	d.records = nil
	d.expiresAt = nil
	d.mu.Unlock()
}

// FindByKey ищет запись по идентификатору (сравнение после обрезки пробелов).
// При дублях возвращается первое вхождение. Возвращается копия записи.
func (d *Dataset) FindByKey(id string) (model.Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i := d.indexOfLocked(id)
	if i < 0 {
		return model.Record{}, false
	}
	return d.records[i].Clone(), true
}

func (d *Dataset) indexOfLocked(id string) int {
	key := strings.TrimSpace(id)
	for i, r := range d.records {
		if strings.TrimSpace(r.Value(d.idColumn)) == key {
			return i
		}
	}
	return -1
}

// UpdateStatus меняет отметку записи и сразу перезаписывает файл-источник.
// Неизвестный идентификатор — не ошибка: found=false, файл не трогается.
// Если файл не записан, прежняя отметка возвращается в памяти.
func (d *Dataset) UpdateStatus(id string, value bool) (found bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOfLocked(id)
	if i < 0 {
		return false, nil
	}
	prev := d.records[i].Status()
	d.records[i].SetStatus(value)

	if err := d.persistLocked(); err != nil {
		d.records[i].SetStatus(prev)
		return true, err
	}
	return true, nil
}

// Persist перезаписывает файл-источник целиком: заголовок и все записи,
// исходный разделитель, UTF-8, '\n' после каждой строки.
func (d *Dataset) Persist() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.persistLocked()
}

func (d *Dataset) persistLocked() error {
	if d.header == nil {
		return fault.Precondition("набор %s не загружен", d.tag)
	}
	if err := os.WriteFile(d.path, d.serializeLocked(), 0o640); err != nil {
		return fmt.Errorf("запись файла набора %s: %w", d.tag, err)
	}
	return nil
}

func (d *Dataset) serializeLocked() []byte {
	var buf bytes.Buffer
	buf.WriteString(texttable.JoinRow(d.header, d.delimiter))
	buf.WriteByte('\n')
	for _, r := range d.records {
		buf.WriteString(texttable.JoinRow(r.Cells(), d.delimiter))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Export пишет набор в новый файл {tag}_{YYYYMMDDHHMM}.csv в директории dir.
// Выгрузка в ту же минуту перезаписывает предыдущую.
func (d *Dataset) Export(dir string) (*filestore.SaveResult, error) {
	d.mu.RLock()
	if d.header == nil {
		d.mu.RUnlock()
		return nil, fault.Precondition("набор %s не загружен", d.tag)
	}
	data := d.serializeLocked()
	d.mu.RUnlock()

	store, err := filestore.New(dir)
	if err != nil {
		return nil, err
	}

	res, err := store.SaveFile(bytes.NewReader(data), filestore.ExportName(string(d.tag), d.now()))
	if err != nil {
		return nil, fmt.Errorf("выгрузка набора %s: %w", d.tag, err)
	}
	return res, nil
}

// SetExpiry задаёт срок годности набора.
func (d *Dataset) SetExpiry(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expiresAt = &t
}

// Expiry возвращает срок годности; ok=false, если срок не задан.
func (d *Dataset) Expiry() (time.Time, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.expiresAt == nil {
		return time.Time{}, false
	}
	return *d.expiresAt, true
}

// IsStale сообщает, что срок годности истёк или не задан.
func (d *Dataset) IsStale(now time.Time) bool {
	exp, ok := d.Expiry()
	return !ok || now.After(exp)
}

// Tag возвращает метку набора.
func (d *Dataset) Tag() model.DatasetTag {
	return d.tag
}

// Path возвращает путь к файлу-источнику (пусто, если набор не загружен).
func (d *Dataset) Path() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.path
}

// Delimiter возвращает разделитель источника.
func (d *Dataset) Delimiter() rune {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.delimiter
}

// Encoding возвращает кодировку, в которой был прочитан источник.
func (d *Dataset) Encoding() texttable.Encoding {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.encoding
}

// Header возвращает заголовок набора (копия).
func (d *Dataset) Header() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.header))
	copy(out, d.header)
	return out
}

// IDColumn возвращает имя колонки идентификатора.
func (d *Dataset) IDColumn() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.idColumn
}

// Records возвращает копии всех записей.
func (d *Dataset) Records() []model.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Record, len(d.records))
	for i, r := range d.records {
		out[i] = r.Clone()
	}
	return out
}

// Count возвращает количество записей.
func (d *Dataset) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// IsLoaded сообщает, что набор загружен.
func (d *Dataset) IsLoaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.header != nil
}
