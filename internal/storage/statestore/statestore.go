// Пакет statestore — хранилище состояния устройства: ключ → строка.
//
// Хранятся идентичность устройства, ответ валидации и сведения о загрузке
// наборов данных. Реляционной структуры нет, только скалярные значения
// и непрозрачные JSON-блобы.
//
// Реализации: SQLite (modernc, схема через golang-migrate) и память (тесты).
package statestore

import (
	"context"
	"fmt"

	"github.com/bigkaa/carepoint/internal/domain/model"
)

// Ключи состояния устройства.
const (
	KeyInstitutionCode   = "device.institution_code"
	KeyDeviceID          = "device.id"
	KeyBackendDeviceID   = "device.backend_id"
	KeyRegistrationKey   = "device.registration_key"
	KeyValidationPayload = "device.validation_payload"
	KeyLastKey           = "device.last_key"
	KeyPhone             = "device.phone"
	// KeyGeneratedDeviceID — идентификатор, созданный при недоступности
	// платформенного, чтобы он не менялся между перезапусками
	KeyGeneratedDeviceID = "device.generated_id"
)

// Поля сведений о наборе данных.
const (
	FieldPath      = "path"
	FieldExpiresAt = "expires_at"
	FieldLoadedOn  = "loaded_on"
)

// DatasetKey возвращает ключ поля набора: dataset.<tag>.<field>.
func DatasetKey(tag model.DatasetTag, field string) string {
	return fmt.Sprintf("dataset.%s.%s", tag, field)
}

// Store — хранилище состояния.
type Store interface {
	// Get возвращает значение; ok=false, если ключа нет.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// SetMany записывает несколько значений атомарно.
	SetMany(ctx context.Context, values map[string]string) error
	// Delete удаляет ключи. Отсутствующие ключи не ошибка.
	Delete(ctx context.Context, keys ...string) error
	// Replace записывает set и удаляет del одной атомарной операцией.
	Replace(ctx context.Context, set map[string]string, del []string) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}

// Set записывает одно значение.
func Set(ctx context.Context, s Store, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

// GetString возвращает значение или пустую строку.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	v, _, err := s.Get(ctx, key)
	return v, err
}
