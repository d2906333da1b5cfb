// member.go — репозиторий членств шаринга образов.
//
// Пара (image, member) уникальна на всю историю: повторное добавление
// члена переиспользует soft-deleted строку (FindIncludingDeleted + Update),
// а не создаёт новую — одна auditable-запись на отношение.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/laoyigrace/imagestore/internal/domain/model"
)

// MemberRepository — интерфейс CRUD для таблицы image_members.
type MemberRepository interface {
	// Get возвращает живое членство по идентификатору.
	Get(ctx context.Context, id string) (*model.ImageMember, error)
	// Find возвращает живое членство пары (image, member).
	Find(ctx context.Context, imageID, member string) (*model.ImageMember, error)
	// FindIncludingDeleted ищет строку пары, включая soft-deleted историю.
	FindIncludingDeleted(ctx context.Context, imageID, member string) (*model.ImageMember, error)
	// ListByImage возвращает живые членства образа, опционально по статусу.
	ListByImage(ctx context.Context, imageID, status string) ([]*model.ImageMember, error)
	// ListByMember возвращает живые членства tenant'а по всем образам.
	ListByMember(ctx context.Context, member, status string) ([]*model.ImageMember, error)
	// Insert создаёт новую строку членства.
	Insert(ctx context.Context, m *model.ImageMember) error
	// Update перезаписывает поля строки (включая возврат из soft delete).
	Update(ctx context.Context, m *model.ImageMember) error
	// SoftDelete помечает членство удалённым.
	SoftDelete(ctx context.Context, id string) error
	// CountLive возвращает число живых членств образа.
	CountLive(ctx context.Context, imageID string) (int, error)
}

// memberRepo — реализация MemberRepository.
type memberRepo struct {
	db DBTX
}

// NewMemberRepository создаёт репозиторий членств.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepo{db: pool}
}

const memberColumns = `id, image_id, member, status, can_share, created_at, updated_at, deleted_at, deleted`

func scanMember(row pgx.Row) (*model.ImageMember, error) {
	m := &model.ImageMember{}
	err := row.Scan(&m.ID, &m.ImageID, &m.Member, &m.Status, &m.CanShare,
		&m.CreatedAt, &m.UpdatedAt, &m.DeletedAt, &m.Deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения членства: %w", err)
	}
	return m, nil
}

func (r *memberRepo) Get(ctx context.Context, id string) (*model.ImageMember, error) {
	return scanMember(r.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM image_members WHERE id = $1 AND NOT deleted`, id))
}

func (r *memberRepo) Find(ctx context.Context, imageID, member string) (*model.ImageMember, error) {
	return scanMember(r.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM image_members
		 WHERE image_id = $1 AND member = $2 AND NOT deleted`, imageID, member))
}

func (r *memberRepo) FindIncludingDeleted(ctx context.Context, imageID, member string) (*model.ImageMember, error) {
	return scanMember(r.db.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM image_members
		 WHERE image_id = $1 AND member = $2`, imageID, member))
}

func (r *memberRepo) list(ctx context.Context, query string, args ...any) ([]*model.ImageMember, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка списка членств: %w", err)
	}
	defer rows.Close()

	var members []*model.ImageMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *memberRepo) ListByImage(ctx context.Context, imageID, status string) ([]*model.ImageMember, error) {
	args := &argList{}
	query := `SELECT ` + memberColumns + ` FROM image_members
		WHERE image_id = ` + args.add(imageID) + ` AND NOT deleted`
	if status != "" && status != "all" {
		query += ` AND status = ` + args.add(status)
	}
	query += ` ORDER BY created_at`
	return r.list(ctx, query, args.args...)
}

func (r *memberRepo) ListByMember(ctx context.Context, member, status string) ([]*model.ImageMember, error) {
	args := &argList{}
	query := `SELECT ` + memberColumns + ` FROM image_members
		WHERE member = ` + args.add(member) + ` AND NOT deleted`
	if status != "" && status != "all" {
		query += ` AND status = ` + args.add(status)
	}
	query += ` ORDER BY created_at`
	return r.list(ctx, query, args.args...)
}

func (r *memberRepo) Insert(ctx context.Context, m *model.ImageMember) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO image_members (id, image_id, member, status, can_share)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		m.ID, m.ImageID, m.Member, m.Status, m.CanShare,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: членство для этой пары уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания членства: %w", err)
	}
	return nil
}

func (r *memberRepo) Update(ctx context.Context, m *model.ImageMember) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE image_members
		SET status = $2, can_share = $3, deleted = FALSE, deleted_at = NULL, updated_at = now()
		WHERE id = $1`,
		m.ID, m.Status, m.CanShare,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления членства: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	m.Deleted = false
	m.DeletedAt = nil
	return nil
}

func (r *memberRepo) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE image_members SET deleted = TRUE, deleted_at = now(), updated_at = now()
		WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления членства: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *memberRepo) CountLive(ctx context.Context, imageID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM image_members WHERE image_id = $1 AND NOT deleted`, imageID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта членств: %w", err)
	}
	return count, nil
}
