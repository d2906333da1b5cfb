// Пакет database — слой PostgreSQL обслуживающего демона каталога:
// пул pgx с параметрами из конфигурации, вшитые в бинарь миграции
// (golang-migrate) и probe готовности для служебного HTTP-сервера.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/laoyigrace/imagestore/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect собирает пул pgxpool по конфигурации каталога и проверяет его
// первым ping. Размер пула, время жизни подключения и таймаут управляются
// IS_DB_MAX_CONNS, IS_DB_CONN_LIFETIME и IS_DB_CONNECT_TIMEOUT.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("некорректный DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBConnLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.DBConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("пул подключений: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL недоступен: %w", err)
	}

	logger.Info("пул PostgreSQL готов",
		slog.String("host", cfg.DBHost),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", cfg.DBMaxConns),
	)
	return pool, nil
}

// Migrate доводит схему базы до актуальной версии. Источник — iofs поверх
// embedded FS, драйвер — pgx5. Повторный запуск на актуальной схеме — no-op.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()

	switch err := m.Up(); {
	case err == nil:
		version, _, _ := m.Version()
		logger.Info("схема обновлена", slog.Uint64("version", uint64(version)))
	case errors.Is(err, migrate.ErrNoChange):
		version, _, _ := m.Version()
		logger.Info("схема актуальна", slog.Uint64("version", uint64(version)))
	default:
		return fmt.Errorf("применение миграций: %w", err)
	}
	return nil
}

// Probe — проверка готовности базы для endpoint /health/ready.
// Реализует интерфейс server.ReadinessChecker.
type Probe struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewProbe создаёт probe готовности PostgreSQL. Таймаут ping берётся
// из таймаута подключения конфигурации.
func NewProbe(pool *pgxpool.Pool, cfg *config.Config) *Probe {
	return &Probe{pool: pool, timeout: cfg.DBConnectTimeout}
}

// CheckReady выполняет ping пула и возвращает статус ("ok", "fail") с сообщением.
func (p *Probe) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
