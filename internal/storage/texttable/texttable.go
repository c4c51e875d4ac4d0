// Пакет texttable — разбор текстовых таблиц с неизвестными кодировкой
// и разделителем.
//
// Кодировка: сначала UTF-8, при ошибке — ISO-8859-1 (однобайтовая,
// любой байт допустим, поэтому второй шаг не может завершиться ошибкой).
// Разделитель: ',' или ';', определяется эвристически по одной строке.
package texttable

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Encoding — кодировка, в которой удалось прочитать источник.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "iso-8859-1"
)

// Поддерживаемые разделители.
const (
	Comma     = ','
	Semicolon = ';'
)

const (
	bom       = "\uFEFF"
	bomLatin1 = "\u00EF\u00BB\u00BF" // BOM UTF-8, прочитанный как ISO-8859-1
)

// Decode преобразует байты файла в строки в порядке следования.
// Строки не фильтруются, завершающий '\r' отрезается.
func Decode(raw []byte) ([]string, Encoding) {
	text, enc := decodeText(raw)
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines, enc
}

func decodeText(raw []byte) (string, Encoding) {
	if out, _, err := transform.Bytes(encoding.UTF8Validator, raw); err == nil {
		return string(out), EncodingUTF8
	}

	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		// Декодер ISO-8859-1 отображает каждый байт, сюда попасть нельзя.
		return string(raw), EncodingLatin1
	}
	return string(out), EncodingLatin1
}

// DetectDelimiter выбирает разделитель по одной строке-образцу:
// ',' при равенстве или перевесе запятых, иначе ';'.
func DetectDelimiter(line string) rune {
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return Semicolon
	}
	return Comma
}

// SplitRow разбивает строку по разделителю и обрезает пробелы в ячейках.
// Пустые ячейки в конце сохраняются: выравнивание по позиции важно.
func SplitRow(line string, delim rune) []string {
	cells := strings.Split(line, string(delim))
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

// JoinRow собирает строку из ячеек через разделитель.
func JoinRow(cells []string, delim rune) string {
	return strings.Join(cells, string(delim))
}

// StripBOM убирает метку порядка байтов в начале строки.
func StripBOM(s string) string {
	s = strings.TrimPrefix(s, bom)
	return strings.TrimPrefix(s, bomLatin1)
}

// Normalize приводит строку к виду для поиска маркеров:
// без BOM, без пробелов по краям, в нижнем регистре.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(StripBOM(s)))
}

// IsBlank сообщает, что строка не содержит ничего, кроме пробелов.
func IsBlank(line string) bool {
	return strings.TrimSpace(StripBOM(line)) == ""
}
