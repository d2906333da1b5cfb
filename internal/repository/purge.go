// purge.go — физическое удаление строк, прошедших soft delete.
//
// Purge — единственный путь физического удаления: строки, у которых
// deleted_at старше заданного возраста, удаляются батчами, начиная
// с самых старых. Дочерние таблицы обрабатываются раньше images,
// чтобы соблюсти порядок внешних ключей.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PurgeTables — таблицы, обслуживаемые purge, в порядке обработки
// (дочерние раньше родительской images).
var PurgeTables = []string{
	"image_properties",
	"image_tags",
	"image_locations",
	"image_members",
	"images",
}

// purgeableTables — закрытый список: имя таблицы подставляется в SQL.
var purgeableTables = map[string]bool{
	"image_properties": true,
	"image_tags":       true,
	"image_locations":  true,
	"image_members":    true,
	"images":           true,
}

// PurgeRepository — физическое удаление старых soft-deleted строк.
type PurgeRepository interface {
	// Purge удаляет из таблицы до batch строк с deleted_at старше before,
	// начиная с самых старых. Возвращает число удалённых строк.
	Purge(ctx context.Context, table string, before time.Time, batch int) (int64, error)
}

// purgeRepo — реализация PurgeRepository.
type purgeRepo struct {
	db DBTX
}

// NewPurgeRepository создаёт репозиторий purge.
func NewPurgeRepository(pool *pgxpool.Pool) PurgeRepository {
	return &purgeRepo{db: pool}
}

func (r *purgeRepo) Purge(ctx context.Context, table string, before time.Time, batch int) (int64, error) {
	if !purgeableTables[table] {
		return 0, fmt.Errorf("таблица %q не обслуживается purge", table)
	}

	query := fmt.Sprintf(`
		DELETE FROM %[1]s WHERE id IN (
			SELECT id FROM %[1]s
			WHERE deleted AND deleted_at < $1
			ORDER BY deleted_at ASC
			LIMIT $2
		)`, table)

	if table == "images" {
		// Образ удаляется только после того, как purge дочерних таблиц
		// освободил его внешние ключи.
		query = `
			DELETE FROM images WHERE id IN (
				SELECT i.id FROM images i
				WHERE i.deleted AND i.deleted_at < $1
				  AND NOT EXISTS (SELECT 1 FROM image_properties p WHERE p.image_id = i.id)
				  AND NOT EXISTS (SELECT 1 FROM image_tags t WHERE t.image_id = i.id)
				  AND NOT EXISTS (SELECT 1 FROM image_locations l WHERE l.image_id = i.id)
				  AND NOT EXISTS (SELECT 1 FROM image_members m WHERE m.image_id = i.id)
				ORDER BY i.deleted_at ASC
				LIMIT $2
			)`
	}

	tag, err := r.db.Exec(ctx, query, before, batch)
	if err != nil {
		return 0, fmt.Errorf("ошибка purge таблицы %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}
