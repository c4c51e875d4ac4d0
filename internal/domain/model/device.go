package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeviceIdentity — сохранённое состояние устройства.
// Единственная запись на процесс, заменяется только повторной регистрацией.
type DeviceIdentity struct {
	// InstitutionCode — код учреждения, под которым зарегистрировано устройство
	InstitutionCode string `json:"institution_code"`
	// DeviceID — платформенный идентификатор устройства
	DeviceID string `json:"device_id"`
	// BackendDeviceID — идентификатор устройства на стороне сервиса лицензий
	BackendDeviceID string `json:"backend_device_id,omitempty"`
	// RegistrationKey — ключ, выданный при регистрации
	RegistrationKey string `json:"-"`
	// LastKey — последний ключ, с которым выполнялась валидация
	LastKey string `json:"-"`
	// Phone — необязательный телефон из ответа валидации
	Phone string `json:"phone,omitempty"`
	// Payload — полный ответ валидации (nil до первой успешной валидации)
	Payload *ValidationPayload `json:"validation,omitempty"`
}

// IsRegistered сообщает, что код учреждения и идентификатор устройства сохранены.
func (d *DeviceIdentity) IsRegistered() bool {
	return d.InstitutionCode != "" && d.DeviceID != ""
}

// IsValidated сообщает, что сохранён ответ успешной валидации.
func (d *DeviceIdentity) IsValidated() bool {
	return d.Payload != nil && d.Payload.Valid
}

// ValidationPayload — ответ сервиса лицензий на валидацию ключа.
// Хранится дословно. Из него разбираются только зарезервированные поля.
type ValidationPayload struct {
	// Raw — исходный JSON без изменений
	Raw json.RawMessage `json:"-"`
	// Password — эхо ключа
	Password string `json:"-"`
	// Valid — флаг действительности
	Valid bool `json:"valid"`
	// Institution — описательные данные учреждения
	Institution json.RawMessage `json:"institution,omitempty"`
	// Phone — необязательный телефон
	Phone string `json:"phone,omitempty"`
	// Message — сообщение сервера
	Message string `json:"message,omitempty"`
}

// ParseValidationPayload разбирает ответ валидации, сохраняя исходные байты.
func ParseValidationPayload(raw []byte) (*ValidationPayload, error) {
	var fields struct {
		Password    string          `json:"password"`
		Valid       bool            `json:"valid"`
		Institution json.RawMessage `json:"institution"`
		Phone       string          `json:"phone"`
		Message     string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("разбор ответа валидации: %w", err)
	}

	stored := make(json.RawMessage, len(raw))
	copy(stored, raw)

	return &ValidationPayload{
		Raw:         stored,
		Password:    fields.Password,
		Valid:       fields.Valid,
		Institution: fields.Institution,
		Phone:       fields.Phone,
		Message:     fields.Message,
	}, nil
}

// InstitutionName возвращает поле name из метаданных учреждения, если оно есть.
func (p *ValidationPayload) InstitutionName() string {
	if p == nil || len(p.Institution) == 0 {
		return ""
	}
	var inst struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(p.Institution, &inst); err != nil {
		return ""
	}
	return inst.Name
}

// DatasetState — сохранённые сведения о последней загрузке набора.
type DatasetState struct {
	Tag DatasetTag `json:"tag"`
	// Path — путь к файлу-источнику
	Path string `json:"path,omitempty"`
	// ExpiresAt — срок годности (nil, если набор ни разу не загружался)
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// LoadedOn — дата загрузки в человекочитаемом виде
	LoadedOn string `json:"loaded_on,omitempty"`
}

// IsExpired сообщает, что набор просрочен. Набор без срока считается просроченным.
func (s DatasetState) IsExpired(now time.Time) bool {
	if s.ExpiresAt == nil {
		return true
	}
	return now.After(*s.ExpiresAt)
}
