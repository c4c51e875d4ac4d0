// deviceinfo.go — платформенный идентификатор и имя устройства.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bigkaa/carepoint/internal/storage/statestore"
)

// defaultIDSources — файлы с аппаратным или системным идентификатором (Linux).
var defaultIDSources = []string{
	"/sys/class/dmi/id/product_uuid",
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// PlatformDevice определяет идентификатор устройства в порядке:
//  1. явно заданный (CP_DEVICE_ID)
//  2. первый непустой файл из списка источников
//  3. UUID, созданный один раз и сохранённый в statestore
type PlatformDevice struct {
	override string
	name     string
	sources  []string
	store    statestore.Store
	logger   *slog.Logger

	mu     sync.Mutex
	cached string
}

// NewPlatformDevice создаёт источник идентичности устройства.
// overrideID и displayName могут быть пустыми.
func NewPlatformDevice(overrideID, displayName string, store statestore.Store, logger *slog.Logger) *PlatformDevice {
	return &PlatformDevice{
		override: strings.TrimSpace(overrideID),
		name:     strings.TrimSpace(displayName),
		sources:  defaultIDSources,
		store:    store,
		logger:   logger.With(slog.String("component", "device_info")),
	}
}

// DeviceID возвращает стабильный идентификатор устройства.
func (d *PlatformDevice) DeviceID(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cached != "" {
		return d.cached, nil
	}
	if d.override != "" {
		d.cached = d.override
		return d.cached, nil
	}

	for _, src := range d.sources {
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			d.logger.Debug("Идентификатор устройства получен с платформы",
				slog.String("source", src),
			)
			d.cached = id
			return id, nil
		}
	}

	id, ok, err := d.store.Get(ctx, statestore.KeyGeneratedDeviceID)
	if err != nil {
		return "", fmt.Errorf("чтение сохранённого идентификатора устройства: %w", err)
	}
	if !ok || id == "" {
		id = uuid.New().String()
		if err := statestore.Set(ctx, d.store, statestore.KeyGeneratedDeviceID, id); err != nil {
			return "", fmt.Errorf("сохранение идентификатора устройства: %w", err)
		}
		d.logger.Info("Создан идентификатор устройства",
			slog.String("device_id", id),
		)
	}
	d.cached = id
	return id, nil
}

// DisplayName возвращает человекочитаемое имя устройства: заданное явно или имя хоста.
func (d *PlatformDevice) DisplayName() string {
	if d.name != "" {
		return d.name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "carepoint"
	}
	return host
}
