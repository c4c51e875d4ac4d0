// Точка входа carepoint — офлайн-справочника точки обслуживания пациентов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/carepoint/internal/api/handlers"
	"github.com/bigkaa/carepoint/internal/config"
	"github.com/bigkaa/carepoint/internal/domain/model"
	"github.com/bigkaa/carepoint/internal/licenseclient"
	"github.com/bigkaa/carepoint/internal/server"
	"github.com/bigkaa/carepoint/internal/service"
	"github.com/bigkaa/carepoint/internal/storage/archive"
	"github.com/bigkaa/carepoint/internal/storage/statestore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "carepoint: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("carepoint запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
		slog.String("license_url", cfg.LicenseURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Инициализация компонентов ---

	// 1. Хранилище состояния устройства (SQLite + миграции)
	store, err := statestore.OpenSQLite(cfg.StateDB, logger)
	if err != nil {
		return fmt.Errorf("хранилище состояния: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("Ошибка закрытия хранилища состояния", slog.String("error", cerr.Error()))
		}
	}()

	// 2. Клиент сервиса лицензий
	remote, err := licenseclient.New(cfg.LicenseURL, cfg.LicenseCACert, cfg.LicenseTimeout, logger)
	if err != nil {
		return fmt.Errorf("клиент сервиса лицензий: %w", err)
	}

	// 3. Контроллер доверия к устройству
	device := service.NewPlatformDevice(cfg.DeviceID, cfg.DeviceName, store, logger)
	tokenCache := service.NewTokenCache(cfg.TokenCacheSize, cfg.TokenCacheTTL)
	trustCtrl, err := service.NewTrustController(ctx, remote, device, store, tokenCache, logger)
	if err != nil {
		return fmt.Errorf("контроллер доверия: %w", err)
	}

	// 4. Архив выгрузок (опционально)
	var archiver service.Archiver
	if cfg.ArchiveEnabled() {
		s3Store, aerr := archive.New(ctx, archive.Config{
			Bucket:          cfg.ArchiveBucket,
			Region:          cfg.ArchiveRegion,
			Endpoint:        cfg.ArchiveEndpoint,
			PathStyle:       cfg.ArchivePathStyle,
			Prefix:          cfg.ArchivePrefix,
			AccessKeyID:     cfg.ArchiveAccessKey,
			SecretAccessKey: cfg.ArchiveSecretKey,
		}, logger)
		if aerr != nil {
			return fmt.Errorf("архив выгрузок: %w", aerr)
		}
		archiver = s3Store
		logger.Info("Архив выгрузок включён", slog.String("bucket", s3Store.Bucket()))
	}

	// 5. Наборы данных: восстановление из сохранённых путей без удалённых вызовов
	ttlDays := map[model.DatasetTag]int{
		model.DatasetA: cfg.DatasetATTLDays,
		model.DatasetB: cfg.DatasetBTTLDays,
	}
	datasetSvc := service.NewDatasetService(trustCtrl, service.DatasetConfig{
		ExportDir:            cfg.ExportDir,
		TTLDays:              ttlDays,
		RequireTokenFilename: cfg.RequireTokenFilename,
	}, archiver, logger)
	restored := datasetSvc.Restore()
	logger.Info("Наборы данных восстановлены", slog.Int("count", restored))

	// 6. Фоновые процессы

	// 6.1 Проверка сроков наборов
	expiry := service.NewExpiryWatcher(trustCtrl, cfg.ExpiryCheckInterval, logger)
	expiry.Start(ctx)
	defer expiry.Stop()

	// 6.2 topologymetrics — мониторинг сервиса лицензий
	dephealthSvc, dephealthErr := service.NewDephealthService(
		cfg.ServiceID,
		cfg.DephealthGroup,
		cfg.LicenseURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	var deps handlers.DependencyReporter
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		deps = dephealthSvc
		defer dephealthSvc.Stop()
		logger.Info("topologymetrics запущен",
			slog.String("license_url", cfg.LicenseURL),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 7. Handlers
	apiHandler := handlers.NewAPIHandler(
		handlers.NewDeviceHandler(trustCtrl, logger),
		handlers.NewDatasetsHandler(datasetSvc, logger),
		handlers.NewPatientsHandler(datasetSvc),
		handlers.NewHealthHandler(store, cfg.ExportDir, deps),
		server.MetricsHandler(),
	)

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("Остановка фоновых процессов...")
	return nil
}
