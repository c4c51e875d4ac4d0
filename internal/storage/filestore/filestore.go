// Пакет filestore — запись файлов выгрузки на диск.
// Обеспечивает атомарную запись с подсчётом SHA-256 на лету
// и формирование имён файлов выгрузки.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ExportTimeLayout — точность метки времени в имени выгрузки: до минуты.
// Выгрузки одного набора в пределах одной минуты перезаписывают друг друга.
const ExportTimeLayout = "200601021504"

// FileStore — директория, в которую пишутся файлы выгрузки.
type FileStore struct {
	dir string
}

// SaveResult — результат записи файла.
type SaveResult struct {
	// Name — имя файла в директории
	Name string `json:"name"`
	// FullPath — абсолютный путь файла на диске
	FullPath string `json:"path"`
	// Size — размер записанных данных в байтах
	Size int64 `json:"size"`
	// Checksum — SHA-256 содержимого
	Checksum string `json:"checksum"`
}

// New создаёт FileStore, при необходимости создавая директорию.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию выгрузки %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// SaveFile записывает данные из reader в файл name с подсчётом SHA-256.
// Существующий файл с тем же именем заменяется.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (fs *FileStore) SaveFile(reader io.Reader, name string) (*SaveResult, error) {
	fullPath := filepath.Join(fs.dir, name)
	tmpPath := fmt.Sprintf("%s.%s.tmp", fullPath, uuid.New().String()[:8])

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		Name:     name,
		FullPath: fullPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает ранее записанный файл для чтения.
// Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(fs.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", name)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", name, err)
	}
	return f, nil
}

// Dir возвращает путь к директории.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// ExportName формирует имя файла выгрузки: {tag}_{YYYYMMDDHHMM}.csv.
func ExportName(tag string, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", tag, now.Format(ExportTimeLayout))
}
