package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNew_CreatesDirectory проверяет создание директории выгрузки.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports", "nested")

	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if fs.Dir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.Dir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestSaveFile проверяет запись файла с подсчётом SHA-256.
func TestSaveFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := "numeroId,Nombre,status\n123,Ana,false\n"
	result, err := fs.SaveFile(strings.NewReader(content), "A_202401011200.csv")
	if err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}

	sum := sha256.Sum256([]byte(content))
	if result.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("checksum не совпадает: %s", result.Checksum)
	}

	data, err := os.ReadFile(result.FullPath)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if string(data) != content {
		t.Errorf("содержимое: ожидалось %q, получено %q", content, string(data))
	}
}

// TestSaveFile_Overwrites проверяет замену файла с тем же именем.
func TestSaveFile_Overwrites(t *testing.T) {
	fs, _ := New(t.TempDir())

	if _, err := fs.SaveFile(strings.NewReader("первая"), "B_202401011200.csv"); err != nil {
		t.Fatalf("первая запись: %v", err)
	}
	res, err := fs.SaveFile(strings.NewReader("вторая"), "B_202401011200.csv")
	if err != nil {
		t.Fatalf("вторая запись: %v", err)
	}

	data, _ := os.ReadFile(res.FullPath)
	if string(data) != "вторая" {
		t.Errorf("ожидалось содержимое второй записи, получено %q", string(data))
	}
}

// TestSaveFile_NoTempLeftovers проверяет отсутствие временных файлов после записи.
func TestSaveFile_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	fs, _ := New(dir)

	if _, err := fs.SaveFile(strings.NewReader("data"), "A_1.csv"); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("остался временный файл: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("ожидался 1 файл, получено %d", len(entries))
	}
}

// failingReader возвращает ошибку при чтении.
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

// TestSaveFile_ReaderError проверяет удаление временного файла при ошибке.
func TestSaveFile_ReaderError(t *testing.T) {
	dir := t.TempDir()
	fs, _ := New(dir)

	if _, err := fs.SaveFile(failingReader{}, "A_1.csv"); err == nil {
		t.Fatal("ожидалась ошибка записи")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("директория должна быть пустой, найдено %d файлов", len(entries))
	}
}

// TestOpen проверяет чтение записанного файла и ошибку для отсутствующего.
func TestOpen(t *testing.T) {
	fs, _ := New(t.TempDir())
	_, _ = fs.SaveFile(strings.NewReader("x"), "a.csv")

	f, err := fs.Open("a.csv")
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	f.Close()

	if _, err := fs.Open("missing.csv"); err == nil {
		t.Error("ожидалась ошибка для отсутствующего файла")
	}
}

// TestExportName проверяет формат имени выгрузки.
func TestExportName(t *testing.T) {
	now := time.Date(2024, time.March, 5, 14, 7, 59, 0, time.UTC)
	if got := ExportName("A", now); got != "A_202403051407.csv" {
		t.Errorf("ожидалось A_202403051407.csv, получено %s", got)
	}
}
