// quota.go — декоратор квот поверх каталога и операций членства.
//
// Конфигурация квот передаётся явно при сборке сервиса; глобального
// состояния нет. Счётные квоты проверяются по итоговому (после сверки)
// размеру коллекции, байтовая — по текущему потреблению владельца.
package service

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/laoyigrace/imagestore/internal/domain/model"
	"github.com/laoyigrace/imagestore/internal/quota"
	"github.com/laoyigrace/imagestore/internal/repository"
)

var quotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "imagestore_quota_rejections_total",
	Help: "Число операций, отклонённых по квоте, по измерениям.",
}, []string{"resource"})

// QuotaService — декоратор, применяющий квоты к операциям каталога
// и членства. Реализует Catalog и Members; делегирует внутрь после
// успешной проверки.
type QuotaService struct {
	catalog Catalog
	members Members
	images  repository.ImageRepository
	counts  repository.MemberRepository
	cfg     quota.Config
	logger  *slog.Logger
}

func NewQuotaService(
	catalog Catalog,
	members Members,
	images repository.ImageRepository,
	counts repository.MemberRepository,
	cfg quota.Config,
	logger *slog.Logger,
) *QuotaService {
	return &QuotaService{
		catalog: catalog,
		members: members,
		images:  images,
		counts:  counts,
		cfg:     cfg,
		logger:  logger.With("component", "quota"),
	}
}

// limitErr фиксирует отказ в метрике и журнале и возвращает типизированную ошибку.
func (s *QuotaService) limitErr(resource string, attempted, maximum, remaining int64) error {
	quotaRejections.WithLabelValues(resource).Inc()
	s.logger.Warn("операция отклонена по квоте",
		"resource", resource,
		"attempted", attempted,
		"maximum", maximum)
	return &LimitExceededError{
		Resource:  resource,
		Attempted: attempted,
		Maximum:   maximum,
		Remaining: remaining,
	}
}

// checkCount проверяет счётную квоту: отрицательный максимум — без ограничения.
func (s *QuotaService) checkCount(resource string, attempted, maximum int) error {
	if maximum < 0 {
		return nil
	}
	if attempted > maximum {
		return s.limitErr(resource, int64(attempted), int64(maximum), 0)
	}
	return nil
}

// --- Catalog ---

func (s *QuotaService) Get(ctx context.Context, actor model.Actor, id string) (*model.Image, error) {
	return s.catalog.Get(ctx, actor, id)
}

func (s *QuotaService) List(ctx context.Context, actor model.Actor, opts ListOptions) ([]*model.Image, error) {
	return s.catalog.List(ctx, actor, opts)
}

func (s *QuotaService) Create(ctx context.Context, actor model.Actor, img *model.Image) (*model.Image, error) {
	if err := s.checkCount("properties", len(img.Properties), s.cfg.ImageProperties); err != nil {
		return nil, err
	}
	if err := s.checkCount("tags", len(img.Tags), s.cfg.ImageTags); err != nil {
		return nil, err
	}
	if err := s.checkCount("locations", len(img.Locations), s.cfg.ImageLocations); err != nil {
		return nil, err
	}
	if len(img.Locations) > 0 {
		owner := actor.Tenant
		if actor.IsAdmin && img.Owner != nil {
			owner = *img.Owner
		}
		if err := s.checkStorage(ctx, owner, img.Size, int64(len(img.Locations)), ""); err != nil {
			return nil, err
		}
	}
	return s.catalog.Create(ctx, actor, img)
}

func (s *QuotaService) Save(ctx context.Context, actor model.Actor, img *model.Image, opts SaveOptions) (*model.Image, error) {
	current, err := s.catalog.Get(ctx, actor, img.ID)
	if err != nil {
		return nil, err
	}

	if img.Tags != nil {
		if err := s.checkCount("tags", uniqueCount(img.Tags), s.cfg.ImageTags); err != nil {
			return nil, err
		}
	}
	if img.Properties != nil {
		post := postPropertyCount(current, img, opts.PurgeProps)
		if err := s.checkCount("properties", post, s.cfg.ImageProperties); err != nil {
			return nil, err
		}
	}
	if img.Locations != nil {
		if err := s.checkCount("locations", len(img.Locations), s.cfg.ImageLocations); err != nil {
			return nil, err
		}
	}

	// Байтовая квота: проверяется только для мутаций, добавляющих данные —
	// задание или увеличение размера, либо рост числа локаций.
	size := current.Size
	if img.Size != nil {
		size = img.Size
	}
	locCount := int64(len(current.Locations))
	if img.Locations != nil {
		locCount = int64(len(img.Locations))
	}
	addsBytes := (img.Size != nil && (current.Size == nil || *img.Size > *current.Size)) ||
		(img.Locations != nil && len(img.Locations) > len(current.Locations))
	if addsBytes && locCount > 0 {
		owner := ""
		if current.Owner != nil {
			owner = *current.Owner
		}
		if err := s.checkStorage(ctx, owner, size, locCount, current.ID); err != nil {
			return nil, err
		}
	}

	return s.catalog.Save(ctx, actor, img, opts)
}

func (s *QuotaService) Delete(ctx context.Context, actor model.Actor, id string) error {
	return s.catalog.Delete(ctx, actor, id)
}

func (s *QuotaService) Locations(ctx context.Context, actor model.Actor, id string, includeDeleted bool) ([]*model.ImageLocation, error) {
	return s.catalog.Locations(ctx, actor, id, includeDeleted)
}

// VerifyStorage — компенсирующая проверка после записи данных: вызывающая
// сторона записала size байт (nil — размер ещё неизвестен) и обязана
// откатить запись, если квота оказалась превышена.
func (s *QuotaService) VerifyStorage(ctx context.Context, owner string, size *int64, excludeImageID string) error {
	return s.checkStorage(ctx, owner, size, 1, excludeImageID)
}

// checkStorage проверяет байтовую квоту владельца. Потребление считается
// без учёта образа excludeImageID: его проектируемый объём size × locCount
// сравнивается с остатком целиком. Неизвестный размер отклоняется только
// при исчерпанном остатке.
func (s *QuotaService) checkStorage(ctx context.Context, owner string, size *int64, locCount int64, excludeImageID string) error {
	if s.cfg.UserStorage <= 0 || owner == "" {
		return nil
	}
	usage, err := s.images.StorageUsage(ctx, owner, excludeImageID)
	if err != nil {
		return storageErr("подсчёт потребления", err)
	}
	remaining := s.cfg.UserStorage - usage
	if size == nil {
		if remaining <= 0 {
			return s.limitErr("storage", 0, s.cfg.UserStorage, remaining)
		}
		return nil
	}
	required := *size * locCount
	if required > remaining {
		return s.limitErr("storage", required, s.cfg.UserStorage, remaining)
	}
	return nil
}

// postPropertyCount вычисляет размер набора свойств после сверки.
func postPropertyCount(current, img *model.Image, purge bool) int {
	desired := make(map[string]bool, len(img.Properties))
	for _, p := range img.Properties {
		desired[p.Name] = true
	}
	if purge {
		return len(desired)
	}
	for _, p := range current.Properties {
		desired[p.Name] = true
	}
	return len(desired)
}

func uniqueCount(values []string) int {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		seen[v] = true
	}
	return len(seen)
}

// --- Members ---

func (s *QuotaService) ListByImage(ctx context.Context, actor model.Actor, imageID, status string) ([]*model.ImageMember, error) {
	return s.members.ListByImage(ctx, actor, imageID, status)
}

func (s *QuotaService) ListShared(ctx context.Context, actor model.Actor, member, status string) ([]*model.ImageMember, error) {
	return s.members.ListShared(ctx, actor, member, status)
}

func (s *QuotaService) Add(ctx context.Context, actor model.Actor, imageID, member string, canShare bool) (*model.ImageMember, error) {
	if s.cfg.ImageMembers >= 0 {
		count, err := s.counts.CountLive(ctx, imageID)
		if err != nil {
			return nil, storageErr("подсчёт членств", err)
		}
		if count+1 > s.cfg.ImageMembers {
			return nil, s.limitErr("members", int64(count+1), int64(s.cfg.ImageMembers), 0)
		}
	}
	return s.members.Add(ctx, actor, imageID, member, canShare)
}

func (s *QuotaService) SetStatus(ctx context.Context, actor model.Actor, imageID, member, status string) (*model.ImageMember, error) {
	return s.members.SetStatus(ctx, actor, imageID, member, status)
}

func (s *QuotaService) Remove(ctx context.Context, actor model.Actor, imageID, member string) error {
	return s.members.Remove(ctx, actor, imageID, member)
}

var (
	_ Catalog = (*QuotaService)(nil)
	_ Members = (*QuotaService)(nil)
	_ Catalog = (*ImageService)(nil)
	_ Members = (*MemberService)(nil)
)
