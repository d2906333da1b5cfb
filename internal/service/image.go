// image.go — каталог образов: бизнес-логика поверх ImageRepository.
//
// Сервис отвечает за валидацию, видимость и сверку дочерних коллекций;
// атомарность записи обеспечивает репозиторий.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/laoyigrace/imagestore/internal/domain/model"
	"github.com/laoyigrace/imagestore/internal/reconcile"
	"github.com/laoyigrace/imagestore/internal/repository"
)

// ListOptions — параметры страницы списка образов в сыром виде
// (до разбора и нормализации).
type ListOptions struct {
	// Filters — фильтры вида key=value (см. repository.ParseImageFilters)
	Filters map[string]string
	// SortKeys, SortDirs — ключи и направления сортировки
	SortKeys []string
	SortDirs []string
	// Marker — идентификатор последнего образа предыдущей страницы
	Marker string
	// Limit — максимум строк; nil — без ограничения
	Limit *int
	// MemberStatus — статус членства при вычислении достижимости
	// (пусто — accepted, MemberStatusAll — любой)
	MemberStatus string
}

// SaveOptions — параметры обновления образа.
type SaveOptions struct {
	// FromStatus — optimistic-precondition: обновление отклоняется,
	// если текущий статус в хранилище не совпадает
	FromStatus *model.ImageStatus
	// PurgeProps — удалять живые свойства, отсутствующие в желаемом наборе;
	// false — недостающие свойства сохраняются (слияние)
	PurgeProps bool
}

// Catalog — интерфейс каталога образов. Реализуется ImageService и
// декоратором квот (QuotaService).
type Catalog interface {
	// Get возвращает образ, видимый актору. Невидимый и несуществующий
	// образы неразличимы: в обоих случаях ErrNotFound.
	Get(ctx context.Context, actor model.Actor, id string) (*model.Image, error)
	// List возвращает страницу образов, достижимых для актора.
	List(ctx context.Context, actor model.Actor, opts ListOptions) ([]*model.Image, error)
	// Create регистрирует новый образ вместе с начальными дочерними коллекциями.
	Create(ctx context.Context, actor model.Actor, img *model.Image) (*model.Image, error)
	// Save обновляет образ и сверяет дочерние коллекции с желаемым состоянием.
	// Указательные поля с nil, пустой Status и нулевые MinDisk/MinRAM остаются
	// без изменений; булевы IsPublic и Protected задаются абсолютно и должны
	// передаваться в каждом вызове — пропуск сбрасывает их в false.
	Save(ctx context.Context, actor model.Actor, img *model.Image, opts SaveOptions) (*model.Image, error)
	// Delete логически удаляет образ и каскадно его дочерние записи.
	Delete(ctx context.Context, actor model.Actor, id string) error
	// Locations возвращает локации образа; includeDeleted — только для администратора.
	Locations(ctx context.Context, actor model.Actor, id string, includeDeleted bool) ([]*model.ImageLocation, error)
	// VerifyStorage повторно проверяет байтовую квоту владельца после записи
	// данных неизвестного заранее размера (компенсирующая проверка).
	VerifyStorage(ctx context.Context, owner string, size *int64, excludeImageID string) error
}

// ImageService — основная реализация каталога.
type ImageService struct {
	repo   repository.ImageRepository
	logger *slog.Logger
}

func NewImageService(repo repository.ImageRepository, logger *slog.Logger) *ImageService {
	return &ImageService{
		repo:   repo,
		logger: logger.With("component", "catalog"),
	}
}

// storageErr оборачивает неожиданную ошибку хранилища в ErrStorage.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

func (s *ImageService) Get(ctx context.Context, actor model.Actor, id string) (*model.Image, error) {
	img, err := s.repo.GetByID(ctx, id, actor.IsAdmin)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("чтение образа", err)
	}
	if !CanSee(actor, img, "") {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return img, nil
}

func (s *ImageService) List(ctx context.Context, actor model.Actor, opts ListOptions) ([]*model.Image, error) {
	filters, err := repository.ParseImageFilters(opts.Filters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	// Фильтр deleted — административный: обычный пользователь не может
	// запрашивать удалённые записи. Исключение — changes-since, который
	// обязан возвращать удалённые строки для инкрементальной синхронизации.
	if filters.Deleted != nil && filters.ChangesSince == nil && !actor.IsAdmin {
		return nil, fmt.Errorf("%w: фильтр deleted доступен только администратору", ErrForbidden)
	}
	sort, err := repository.NormalizeImageSort(opts.SortKeys, opts.SortDirs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if opts.Limit != nil && *opts.Limit < 0 {
		return nil, fmt.Errorf("%w: limit не может быть отрицательным", ErrValidation)
	}
	if opts.MemberStatus != "" && opts.MemberStatus != MemberStatusAll &&
		!model.ValidMemberStatus(opts.MemberStatus) {
		return nil, fmt.Errorf("%w: недопустимый статус членства %q", ErrValidation, opts.MemberStatus)
	}

	// Маркер обязан указывать на образ, видимый актору: невидимый маркер
	// позволил бы прощупывать чужое пространство идентификаторов.
	// Видимость маркера оценивается тем же статусом членства, что и
	// достижимое множество списка — хвост предыдущей страницы всегда
	// годится маркером следующей.
	var marker *model.Image
	if opts.Marker != "" {
		m, err := s.repo.GetByID(ctx, opts.Marker, actor.IsAdmin)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, storageErr("чтение маркера", err)
		}
		if err != nil || !CanSee(actor, m, opts.MemberStatus) {
			return nil, fmt.Errorf("%w: маркер %s не найден", ErrValidation, opts.Marker)
		}
		marker = m
	}

	imgs, err := s.repo.List(ctx, repository.ImageListQuery{
		Actor:        actor,
		Filters:      filters,
		MemberStatus: opts.MemberStatus,
		Sort:         sort,
		Marker:       marker,
		Limit:        opts.Limit,
	})
	if err != nil {
		return nil, storageErr("список образов", err)
	}
	return imgs, nil
}

func (s *ImageService) Create(ctx context.Context, actor model.Actor, img *model.Image) (*model.Image, error) {
	if img.ID == "" {
		img.ID = uuid.NewString()
	} else if err := validateImageID(img.ID); err != nil {
		return nil, err
	}
	if img.Status == "" {
		img.Status = model.StatusQueued
	}
	if err := validateImage(img); err != nil {
		return nil, err
	}
	// Владелец берётся из контекста актора; задать чужого владельца
	// может только администратор.
	if !actor.IsAdmin || img.Owner == nil {
		owner := actor.Tenant
		img.Owner = &owner
	}
	now := time.Now().UTC()
	img.CreatedAt = now
	img.UpdatedAt = now
	img.Deleted = false
	img.DeletedAt = nil
	for _, l := range img.Locations {
		if l.Status == "" {
			l.Status = model.LocationStatusActive
		}
	}

	if err := s.repo.Create(ctx, img); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: образ %s уже существует", ErrConflict, img.ID)
		}
		return nil, storageErr("создание образа", err)
	}
	s.logger.Info("образ создан",
		"image_id", img.ID,
		"tenant", actor.Tenant,
		"status", img.Status)
	return s.reload(ctx, img.ID)
}

func (s *ImageService) Save(ctx context.Context, actor model.Actor, img *model.Image, opts SaveOptions) (*model.Image, error) {
	current, err := s.repo.GetByID(ctx, img.ID, actor.IsAdmin)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, img.ID)
	}
	if err != nil {
		return nil, storageErr("чтение образа", err)
	}
	if !CanSee(actor, current, "") {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, img.ID)
	}
	if !CanMutate(actor, current) {
		return nil, fmt.Errorf("%w: изменение образа %s", ErrForbidden, img.ID)
	}
	if err := validateImage(img); err != nil {
		return nil, err
	}

	next := mergeImage(current, img)
	if next.Status != current.Status {
		// Реактивация — административное действие.
		if current.Status == model.StatusDeactivated && next.Status == model.StatusActive && !actor.IsAdmin {
			return nil, fmt.Errorf("%w: реактивация образа %s", ErrForbidden, img.ID)
		}
		if err := model.CheckTransition(current.Status, next.Status); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}

	update := repository.ImageUpdate{
		Image:      next,
		FromStatus: opts.FromStatus,
	}
	// nil-коллекция означает «не трогать»; непустой (в том числе пустой
	// не-nil) набор — желаемое итоговое состояние.
	if img.Tags != nil {
		update.Tags = reconcile.Tags(current.Tags, img.Tags)
	}
	if img.Properties != nil {
		desired := make(map[string]string, len(img.Properties))
		for _, p := range img.Properties {
			desired[p.Name] = p.Value
		}
		update.Properties = reconcile.Properties(current.Properties, desired, opts.PurgeProps)
	}
	if img.Locations != nil {
		history, err := s.repo.LocationHistoryIDs(ctx, img.ID)
		if err != nil {
			return nil, storageErr("история локаций", err)
		}
		for _, l := range img.Locations {
			if l.Status == "" {
				l.Status = model.LocationStatusActive
			}
		}
		changes, err := reconcile.Locations(current.Locations, history, img.Locations)
		if errors.Is(err, reconcile.ErrLocationResurrected) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		update.Locations = changes
	}

	next.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, update); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, img.ID)
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, storageErr("обновление образа", err)
	}
	s.logger.Info("образ обновлён",
		"image_id", img.ID,
		"tenant", actor.Tenant,
		"status", next.Status)
	return s.reload(ctx, img.ID)
}

func (s *ImageService) Delete(ctx context.Context, actor model.Actor, id string) error {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if !CanMutate(actor, current) {
		return fmt.Errorf("%w: удаление образа %s", ErrForbidden, id)
	}
	if current.Protected {
		return fmt.Errorf("%w: образ %s защищён от удаления", ErrForbidden, id)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return storageErr("удаление образа", err)
	}
	s.logger.Info("образ удалён", "image_id", id, "tenant", actor.Tenant)
	return nil
}

func (s *ImageService) Locations(ctx context.Context, actor model.Actor, id string, includeDeleted bool) ([]*model.ImageLocation, error) {
	if includeDeleted && !actor.IsAdmin {
		return nil, fmt.Errorf("%w: просмотр удалённых локаций", ErrForbidden)
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	locs, err := s.repo.ListLocations(ctx, id, includeDeleted)
	if err != nil {
		return nil, storageErr("список локаций", err)
	}
	return locs, nil
}

// VerifyStorage в базовом каталоге — no-op: байтовую квоту проверяет
// декоратор QuotaService.
func (s *ImageService) VerifyStorage(ctx context.Context, owner string, size *int64, excludeImageID string) error {
	return nil
}

func (s *ImageService) reload(ctx context.Context, id string) (*model.Image, error) {
	img, err := s.repo.GetByID(ctx, id, false)
	if err != nil {
		return nil, storageErr("перечитывание образа", err)
	}
	return img, nil
}

// mergeImage накладывает заданные поля img на current и возвращает
// итоговое состояние. Zero-value указательных полей означает «не менять».
// IsPublic и Protected — абсолютные значения: они переносятся из патча
// как есть (см. godoc Catalog.Save).
func mergeImage(current, img *model.Image) *model.Image {
	next := *current
	if img.Name != nil {
		next.Name = img.Name
	}
	if img.Status != "" {
		next.Status = img.Status
	}
	next.IsPublic = img.IsPublic
	next.Protected = img.Protected
	if img.Owner != nil {
		next.Owner = img.Owner
	}
	if img.Size != nil {
		next.Size = img.Size
	}
	if img.Checksum != nil {
		next.Checksum = img.Checksum
	}
	if img.DiskFormat != nil {
		next.DiskFormat = img.DiskFormat
	}
	if img.ContainerFormat != nil {
		next.ContainerFormat = img.ContainerFormat
	}
	if img.MinDisk != 0 {
		next.MinDisk = img.MinDisk
	}
	if img.MinRAM != 0 {
		next.MinRAM = img.MinRAM
	}
	return &next
}
