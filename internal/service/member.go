// member.go — управление членством (sharing) образов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/laoyigrace/imagestore/internal/domain/model"
	"github.com/laoyigrace/imagestore/internal/repository"
)

// Members — интерфейс операций членства. Реализуется MemberService
// и декоратором квот.
type Members interface {
	// ListByImage возвращает членства образа цели. Владелец и администратор
	// видят весь список, участник — только собственную запись.
	ListByImage(ctx context.Context, actor model.Actor, imageID, status string) ([]*model.ImageMember, error)
	// ListShared возвращает членства арендатора member по всем образам.
	ListShared(ctx context.Context, actor model.Actor, member, status string) ([]*model.ImageMember, error)
	// Add создаёт членство в статусе pending. Повторное добавление
	// удалённой пары переиспользует существующую строку.
	Add(ctx context.Context, actor model.Actor, imageID, member string, canShare bool) (*model.ImageMember, error)
	// SetStatus меняет статус членства. Принять или отклонить приглашение
	// может только сам участник (или администратор).
	SetStatus(ctx context.Context, actor model.Actor, imageID, member, status string) (*model.ImageMember, error)
	// Remove логически удаляет членство.
	Remove(ctx context.Context, actor model.Actor, imageID, member string) error
}

// MemberService — основная реализация операций членства.
type MemberService struct {
	images  repository.ImageRepository
	members repository.MemberRepository
	logger  *slog.Logger
}

func NewMemberService(images repository.ImageRepository, members repository.MemberRepository, logger *slog.Logger) *MemberService {
	return &MemberService{
		images:  images,
		members: members,
		logger:  logger.With("component", "members"),
	}
}

// visibleImage загружает образ и проверяет его видимость для актора.
// Членство любого статуса даёт видимость: приглашённый арендатор должен
// видеть образ, чтобы принять или отклонить приглашение.
func (s *MemberService) visibleImage(ctx context.Context, actor model.Actor, imageID string) (*model.Image, error) {
	img, err := s.images.GetByID(ctx, imageID, false)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, imageID)
	}
	if err != nil {
		return nil, storageErr("чтение образа", err)
	}
	if !CanSee(actor, img, MemberStatusAll) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, imageID)
	}
	return img, nil
}

func (s *MemberService) ListByImage(ctx context.Context, actor model.Actor, imageID, status string) ([]*model.ImageMember, error) {
	if status != "" && !model.ValidMemberStatus(status) {
		return nil, fmt.Errorf("%w: недопустимый статус членства %q", ErrValidation, status)
	}
	img, err := s.visibleImage(ctx, actor, imageID)
	if err != nil {
		return nil, err
	}
	members, err := s.members.ListByImage(ctx, imageID, status)
	if err != nil {
		return nil, storageErr("список членств", err)
	}
	if CanMutate(actor, img) {
		return members, nil
	}
	// Участник видит только собственную запись.
	own := members[:0]
	for _, m := range members {
		if m.Member == actor.Tenant {
			own = append(own, m)
		}
	}
	return own, nil
}

func (s *MemberService) ListShared(ctx context.Context, actor model.Actor, member, status string) ([]*model.ImageMember, error) {
	if !actor.IsAdmin && actor.Tenant != member {
		return nil, fmt.Errorf("%w: просмотр членств арендатора %s", ErrForbidden, member)
	}
	if status != "" && !model.ValidMemberStatus(status) {
		return nil, fmt.Errorf("%w: недопустимый статус членства %q", ErrValidation, status)
	}
	members, err := s.members.ListByMember(ctx, member, status)
	if err != nil {
		return nil, storageErr("список членств", err)
	}
	return members, nil
}

func (s *MemberService) Add(ctx context.Context, actor model.Actor, imageID, member string, canShare bool) (*model.ImageMember, error) {
	if member == "" {
		return nil, fmt.Errorf("%w: пустой идентификатор арендатора", ErrValidation)
	}
	img, err := s.visibleImage(ctx, actor, imageID)
	if err != nil {
		return nil, err
	}
	if !CanMutate(actor, img) {
		return nil, fmt.Errorf("%w: управление членствами образа %s", ErrForbidden, imageID)
	}

	existing, err := s.members.FindIncludingDeleted(ctx, imageID, member)
	switch {
	case err == nil && !existing.Deleted:
		return nil, fmt.Errorf("%w: членство %s уже существует", ErrConflict, member)
	case err == nil:
		// Пара когда-то существовала: переиспользуем строку,
		// сбрасывая статус и признак удаления.
		existing.Status = model.MemberStatusPending
		existing.CanShare = canShare
		if err := s.members.Update(ctx, existing); err != nil {
			return nil, storageErr("восстановление членства", err)
		}
		s.logger.Info("членство восстановлено",
			"image_id", imageID, "member", member)
		return s.members.Get(ctx, existing.ID)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storageErr("поиск членства", err)
	}

	m := &model.ImageMember{
		ID:       uuid.NewString(),
		ImageID:  imageID,
		Member:   member,
		Status:   model.MemberStatusPending,
		CanShare: canShare,
	}
	if err := s.members.Insert(ctx, m); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: членство %s уже существует", ErrConflict, member)
		}
		return nil, storageErr("создание членства", err)
	}
	s.logger.Info("членство создано",
		"image_id", imageID, "member", member, "can_share", canShare)
	return m, nil
}

func (s *MemberService) SetStatus(ctx context.Context, actor model.Actor, imageID, member, status string) (*model.ImageMember, error) {
	if !model.ValidMemberStatus(status) {
		return nil, fmt.Errorf("%w: недопустимый статус членства %q", ErrValidation, status)
	}
	if _, err := s.visibleImage(ctx, actor, imageID); err != nil {
		return nil, err
	}
	m, err := s.members.Find(ctx, imageID, member)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: членство %s", ErrNotFound, member)
	}
	if err != nil {
		return nil, storageErr("поиск членства", err)
	}
	// Приглашение принимает или отклоняет сам приглашённый:
	// владелец не может ответить за него.
	if !actor.IsAdmin && actor.Tenant != m.Member {
		return nil, fmt.Errorf("%w: смена статуса членства %s", ErrForbidden, member)
	}
	m.Status = status
	if err := s.members.Update(ctx, m); err != nil {
		return nil, storageErr("обновление членства", err)
	}
	s.logger.Info("статус членства изменён",
		"image_id", imageID, "member", member, "status", status)
	return m, nil
}

func (s *MemberService) Remove(ctx context.Context, actor model.Actor, imageID, member string) error {
	img, err := s.visibleImage(ctx, actor, imageID)
	if err != nil {
		return err
	}
	m, err := s.members.Find(ctx, imageID, member)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: членство %s", ErrNotFound, member)
	}
	if err != nil {
		return storageErr("поиск членства", err)
	}
	// Удалить членство может владелец образа, администратор
	// либо сам участник (отказ от шаринга).
	if !CanMutate(actor, img) && actor.Tenant != m.Member {
		return fmt.Errorf("%w: удаление членства %s", ErrForbidden, member)
	}
	if err := s.members.SoftDelete(ctx, m.ID); err != nil {
		return storageErr("удаление членства", err)
	}
	s.logger.Info("членство удалено", "image_id", imageID, "member", member)
	return nil
}
