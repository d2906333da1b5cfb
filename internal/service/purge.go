// purge.go — сервис фонового физического удаления (Purge).
//
// Строки, прошедшие soft delete раньше настроенного возраста (IS_PURGE_AGE),
// удаляются батчами, начиная с самых старых. Дочерние таблицы обрабатываются
// раньше images, чтобы соблюсти порядок внешних ключей.
//
// Запускается как горутина с периодическим тикером (IS_PURGE_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/laoyigrace/imagestore/internal/repository"
)

// Prometheus метрики Purge
var (
	// purgeRunsTotal — количество запусков purge.
	purgeRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagestore_purge_runs_total",
		Help: "Общее количество запусков purge",
	})

	// purgeRowsTotal — количество физически удалённых строк по таблицам.
	purgeRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagestore_purge_rows_total",
		Help: "Общее количество физически удалённых строк",
	}, []string{"table"})

	// purgeDurationSeconds — длительность выполнения purge.
	purgeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagestore_purge_duration_seconds",
		Help:    "Длительность выполнения purge в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// PurgeResult — итог одного цикла purge.
type PurgeResult struct {
	StartedAt   time.Time
	CompletedAt time.Time
	// Rows — удалено строк по таблицам
	Rows map[string]int64
	// Total — всего удалено строк
	Total int64
}

// PurgeService — сервис фонового физического удаления.
type PurgeService struct {
	repo     repository.PurgeRepository
	interval time.Duration
	age      time.Duration
	batch    int
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
}

// NewPurgeService создаёт сервис purge.
func NewPurgeService(
	repo repository.PurgeRepository,
	interval time.Duration,
	age time.Duration,
	batch int,
	logger *slog.Logger,
) *PurgeService {
	return &PurgeService{
		repo:     repo,
		interval: interval,
		age:      age,
		batch:    batch,
		logger:   logger.With(slog.String("component", "purge")),
	}
}

// Start запускает фоновую горутину purge с периодическим тикером.
func (ps *PurgeService) Start(ctx context.Context) {
	psCtx, cancel := context.WithCancel(ctx)
	ps.cancel = cancel

	go ps.run(psCtx)

	ps.logger.Info("Purge запущен",
		slog.String("interval", ps.interval.String()),
		slog.String("age", ps.age.String()),
		slog.Int("batch", ps.batch),
	)
}

// Stop останавливает фоновый процесс purge.
func (ps *PurgeService) Stop() {
	if ps.cancel != nil {
		ps.cancel()
	}
	ps.logger.Info("Purge остановлен")
}

// IsInProgress возвращает true, если purge выполняется.
func (ps *PurgeService) IsInProgress() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.inProcess
}

// run — основной цикл фоновой горутины.
func (ps *PurgeService) run(ctx context.Context) {
	ticker := time.NewTicker(ps.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ps.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл purge по всем таблицам.
// Потокобезопасен: если purge уже выполняется, возвращает nil, true.
func (ps *PurgeService) RunOnce(ctx context.Context) (*PurgeResult, bool) {
	ps.mu.Lock()
	if ps.inProcess {
		ps.mu.Unlock()
		ps.logger.Warn("Purge уже выполняется, пропуск")
		return nil, true
	}
	ps.inProcess = true
	ps.mu.Unlock()

	defer func() {
		ps.mu.Lock()
		ps.inProcess = false
		ps.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	before := startedAt.Add(-ps.age)
	ps.logger.Info("Purge начат", slog.Time("before", before))

	result := &PurgeResult{
		StartedAt: startedAt,
		Rows:      make(map[string]int64, len(repository.PurgeTables)),
	}

	for _, table := range repository.PurgeTables {
		// Батчи до исчерпания: длинная очередь удаляется за несколько
		// итераций, каждая — отдельный короткий DELETE.
		for {
			if ctx.Err() != nil {
				return result, false
			}
			n, err := ps.repo.Purge(ctx, table, before, ps.batch)
			if err != nil {
				ps.logger.Error("Ошибка purge таблицы",
					slog.String("table", table),
					slog.String("error", err.Error()),
				)
				break
			}
			if n == 0 {
				break
			}
			result.Rows[table] += n
			result.Total += n
			purgeRowsTotal.WithLabelValues(table).Add(float64(n))
			if n < int64(ps.batch) {
				break
			}
		}
	}

	result.CompletedAt = time.Now().UTC()
	duration := result.CompletedAt.Sub(startedAt)

	purgeRunsTotal.Inc()
	purgeDurationSeconds.Observe(duration.Seconds())

	ps.logger.Info("Purge завершён",
		slog.Int64("rows", result.Total),
		slog.Duration("duration", duration),
	)

	return result, false
}
