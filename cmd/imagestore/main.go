// Точка входа Image Store — обслуживающий демон каталога метаданных
// образов ВМ. Загружает конфигурацию, применяет миграции, подключается
// к PostgreSQL, запускает фоновый purge и служебный HTTP-сервер
// (метрики, health, ручной purge) с graceful shutdown.
//
// Операции каталога (образы, членства, квоты) — библиотечный слой
// internal/service; транспортный слой подключает его отдельно.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/laoyigrace/imagestore/internal/config"
	"github.com/laoyigrace/imagestore/internal/database"
	"github.com/laoyigrace/imagestore/internal/repository"
	"github.com/laoyigrace/imagestore/internal/server"
	"github.com/laoyigrace/imagestore/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Image Store запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5. Фоновый purge
	purgeRepo := repository.NewPurgeRepository(pool)
	purgeSvc := service.NewPurgeService(purgeRepo, cfg.PurgeInterval, cfg.PurgeAge, cfg.PurgeBatchSize, logger)
	purgeSvc.Start(ctx)
	logger.Info("Purge настроен",
		slog.String("interval", cfg.PurgeInterval.String()),
		slog.String("age", cfg.PurgeAge.String()),
		slog.Int("batch", cfg.PurgeBatchSize),
	)

	// 6. Probe готовности PostgreSQL
	pgProbe := database.NewProbe(pool, cfg)

	// 7. Запуск служебного HTTP-сервера
	srv := server.New(cfg, logger, pgProbe, purgeSvc)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 8. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	purgeSvc.Stop()

	logger.Info("Image Store остановлен")
}
