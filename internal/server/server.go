// Пакет server — служебный HTTP-сервер каталога с graceful shutdown.
//
// Каталог не несёт пользовательского API: наружу выставлены только
// метрики Prometheus и health-пробы для Kubernetes.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/laoyigrace/imagestore/internal/config"
	"github.com/laoyigrace/imagestore/internal/service"
)

// ReadinessChecker — проверка готовности зависимости для /health/ready.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok" | "error") и сообщение.
	CheckReady() (status string, message string)
}

// PurgeTrigger — ручной запуск цикла purge (POST /tasks/purge).
type PurgeTrigger interface {
	// RunOnce выполняет один цикл purge; skipped — цикл уже выполняется.
	RunOnce(ctx context.Context) (*service.PurgeResult, bool)
}

// Server — служебный HTTP-сервер каталога.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// healthResponse — тело ответа health-проб.
type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// New создаёт HTTP-сервер с маршрутами метрик, health-проб
// и ручного запуска purge.
func New(cfg *config.Config, logger *slog.Logger, readiness ReadinessChecker, purge PurgeTrigger) *Server {
	router := chi.NewRouter()

	router.Handle("/metrics", promhttp.Handler())

	router.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})

	router.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		status, message := readiness.CheckReady()
		code := http.StatusOK
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, healthResponse{Status: status, Message: message})
	})

	router.Post("/tasks/purge", func(w http.ResponseWriter, r *http.Request) {
		result, skipped := purge.RunOnce(r.Context())
		if skipped {
			writeJSON(w, http.StatusConflict, healthResponse{
				Status:  "skipped",
				Message: "purge уже выполняется",
			})
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
