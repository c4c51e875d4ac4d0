package texttable

import (
	"reflect"
	"testing"
)

// TestDecode_UTF8 проверяет чтение корректного UTF-8 и отрезание '\r'.
func TestDecode_UTF8(t *testing.T) {
	lines, enc := Decode([]byte("numeroId;Nombre\r\n1;Señora\r\n"))

	if enc != EncodingUTF8 {
		t.Errorf("ожидалась кодировка utf-8, получена %s", enc)
	}
	want := []string{"numeroId;Nombre", "1;Señora", ""}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("ожидалось %q, получено %q", want, lines)
	}
}

// TestDecode_Latin1Fallback проверяет переход на ISO-8859-1 при невалидном UTF-8.
func TestDecode_Latin1Fallback(t *testing.T) {
	// "Peña" в ISO-8859-1: ñ = 0xF1
	raw := []byte{'1', ',', 'P', 'e', 0xF1, 'a'}

	lines, enc := Decode(raw)
	if enc != EncodingLatin1 {
		t.Fatalf("ожидалась кодировка iso-8859-1, получена %s", enc)
	}
	if lines[0] != "1,Peña" {
		t.Errorf("ожидалось %q, получено %q", "1,Peña", lines[0])
	}
}

// TestDecode_KeepsBlankLines проверяет, что строки не фильтруются.
func TestDecode_KeepsBlankLines(t *testing.T) {
	lines, _ := Decode([]byte("a\n\n  \nb"))
	if len(lines) != 4 {
		t.Errorf("ожидалось 4 строки, получено %d: %q", len(lines), lines)
	}
}

// TestDetectDelimiter проверяет эвристику выбора разделителя.
func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		line string
		want rune
	}{
		{"a,b,c", Comma},
		{"a;b;c", Semicolon},
		{"a;b,c", Comma},       // равенство — запятая
		{"a;b;c,d", Semicolon}, // перевес точек с запятой
		{"без разделителей", Comma},
		{"Pérez, Ana;1;2;3", Semicolon},
	}
	for _, tt := range tests {
		if got := DetectDelimiter(tt.line); got != tt.want {
			t.Errorf("DetectDelimiter(%q): ожидалось %q, получено %q", tt.line, tt.want, got)
		}
	}
}

// TestSplitRow проверяет обрезку и сохранение пустых ячеек в конце.
func TestSplitRow(t *testing.T) {
	got := SplitRow(" 1 ; Ana ;;", Semicolon)
	want := []string{"1", "Ana", "", ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ожидалось %q, получено %q", want, got)
	}
}

// TestJoinRow проверяет обратную сборку строки.
func TestJoinRow(t *testing.T) {
	if got := JoinRow([]string{"1", "Ana", ""}, Comma); got != "1,Ana," {
		t.Errorf("ожидалось %q, получено %q", "1,Ana,", got)
	}
}

// TestNormalize проверяет удаление BOM, пробелов и приведение регистра.
func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"\uFEFFNumeroId,Nombre", "numeroid,nombre"},
		{"\u00EF\u00BB\u00BFNUMERO_ID", "numero_id"},
		{"  Tipo_ID  ", "tipo_id"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q): ожидалось %q, получено %q", tt.in, tt.want, got)
		}
	}
}

// TestIsBlank проверяет распознавание пустых строк.
func TestIsBlank(t *testing.T) {
	if !IsBlank("  \t") || !IsBlank("\uFEFF") {
		t.Error("строка из пробелов или BOM должна считаться пустой")
	}
	if IsBlank(" ; ") {
		t.Error("строка с разделителем не пустая")
	}
}
