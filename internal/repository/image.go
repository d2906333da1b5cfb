// image.go — репозиторий каталога образов.
//
// Составные операции (создание, сохранение, удаление образа вместе с
// дочерними коллекциями) выполняются в одной транзакции: либо фиксируются
// родительская строка и все дочерние изменения, либо ничего. Transient-сбои
// (deadlock, serialization failure) повторяются на границе операции.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/laoyigrace/imagestore/internal/crypt"
	"github.com/laoyigrace/imagestore/internal/domain/model"
	"github.com/laoyigrace/imagestore/internal/reconcile"
)

// ImageListQuery — параметры списка образов.
type ImageListQuery struct {
	// Actor — от имени кого выполняется запрос (ограничивает достижимое множество)
	Actor model.Actor
	// Filters — типизированные фильтры (nil — без фильтров)
	Filters *ImageFilters
	// MemberStatus — фильтр статуса членства при вычислении достижимости
	// (пусто — accepted, "all" — любой статус)
	MemberStatus string
	// Sort — нормализованные ключи сортировки (NormalizeImageSort)
	Sort []SortKey
	// Marker — последняя строка предыдущей страницы (nil — первая страница)
	Marker *model.Image
	// Limit — максимум строк; nil — без ограничения, 0 — пустая страница
	Limit *int
}

// ImageUpdate — атомарное обновление образа и сверенных дочерних коллекций.
type ImageUpdate struct {
	Image *model.Image
	// FromStatus — optimistic-precondition: обновление отклоняется с конфликтом,
	// если текущий статус образа не совпадает
	FromStatus *model.ImageStatus
	Tags       reconcile.TagChanges
	Properties reconcile.PropertyChanges
	Locations  reconcile.LocationChanges
}

// ImageRepository — интерфейс доступа к таблице images и дочерним таблицам.
type ImageRepository interface {
	// GetByID возвращает образ с живыми дочерними коллекциями.
	GetByID(ctx context.Context, id string, includeDeleted bool) (*model.Image, error)
	// List возвращает страницу образов, достижимых для актора.
	List(ctx context.Context, q ImageListQuery) ([]*model.Image, error)
	// Create создаёт образ вместе с начальными тегами, свойствами и локациями.
	Create(ctx context.Context, img *model.Image) error
	// Update атомарно применяет изменения образа и дочерних коллекций.
	Update(ctx context.Context, u ImageUpdate) error
	// SoftDelete помечает образ и все его живые дочерние строки удалёнными.
	SoftDelete(ctx context.Context, id string) error
	// ListLocations возвращает локации образа; includeDeleted — принудительное
	// включение логически удалённых строк (административный режим).
	ListLocations(ctx context.Context, imageID string, includeDeleted bool) ([]*model.ImageLocation, error)
	// LocationHistoryIDs возвращает все идентификаторы локаций,
	// когда-либо назначенные образу (включая удалённые).
	LocationHistoryIDs(ctx context.Context, imageID string) (map[int64]bool, error)
	// StorageUsage возвращает суммарный объём данных tenant'а:
	// Σ size × число живых локаций по не-killed, не удалённым образам.
	// excludeImageID — образ, исключаемый из подсчёта (пусто — без исключений).
	StorageUsage(ctx context.Context, owner string, excludeImageID string) (int64, error)
}

// imageRepo — реализация ImageRepository поверх pgx.
type imageRepo struct {
	pool  *pgxpool.Pool
	txr   *TxRunner
	codec *crypt.Codec
}

// NewImageRepository создаёт репозиторий образов.
// codec применяется прозрачно к адресам локаций при чтении/записи.
func NewImageRepository(pool *pgxpool.Pool, codec *crypt.Codec) ImageRepository {
	return &imageRepo{pool: pool, txr: NewTxRunner(pool), codec: codec}
}

// imageColumns — список колонок таблицы images (алиас i).
const imageColumns = `i.id, i.name, i.status, i.is_public, i.owner, i.protected,
	i.size, i.checksum, i.disk_format, i.container_format, i.min_disk, i.min_ram,
	i.created_at, i.updated_at, i.deleted_at, i.deleted`

// scanImage читает одну строку таблицы images.
func scanImage(row pgx.Row) (*model.Image, error) {
	img := &model.Image{}
	var status string
	err := row.Scan(
		&img.ID, &img.Name, &status, &img.IsPublic, &img.Owner, &img.Protected,
		&img.Size, &img.Checksum, &img.DiskFormat, &img.ContainerFormat,
		&img.MinDisk, &img.MinRAM,
		&img.CreatedAt, &img.UpdatedAt, &img.DeletedAt, &img.Deleted,
	)
	if err != nil {
		return nil, err
	}
	img.Status = model.ImageStatus(status)
	return img, nil
}

func (r *imageRepo) GetByID(ctx context.Context, id string, includeDeleted bool) (*model.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images i WHERE i.id = $1`
	if !includeDeleted {
		query += ` AND NOT i.deleted`
	}

	img, err := scanImage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения образа: %w", err)
	}

	if err := r.loadChildren(ctx, []*model.Image{img}); err != nil {
		return nil, err
	}
	return img, nil
}

func (r *imageRepo) List(ctx context.Context, q ImageListQuery) ([]*model.Image, error) {
	args := &argList{}
	var conds []string

	f := q.Filters
	if f == nil {
		f = &ImageFilters{}
	}

	// Soft-delete / changes-since: changes-since неявно включает
	// недавно удалённые строки, иначе deleted — явный фильтр (false по умолчанию).
	if f.ChangesSince != nil {
		conds = append(conds, fmt.Sprintf("i.updated_at > %s", args.add(*f.ChangesSince)))
	} else {
		showDeleted := f.Deleted != nil && *f.Deleted
		conds = append(conds, fmt.Sprintf("i.deleted = %s", args.add(showDeleted)))
	}

	conds = append(conds, buildImageFilterConds(f, args)...)

	// Достижимое множество: администратор видит всё, остальные — записи
	// без владельца, публичные, собственные и расшаренные им.
	memberStatus := q.MemberStatus
	if memberStatus == "" {
		memberStatus = model.MemberStatusAccepted
	}
	if !q.Actor.IsAdmin {
		tenantPh := args.add(q.Actor.Tenant)
		conds = append(conds, fmt.Sprintf(
			"(i.owner IS NULL OR i.is_public OR i.owner = %s OR %s)",
			tenantPh, memberExistsSQL(tenantPh, memberStatus, args),
		))
	}

	// Фильтр видимости
	switch f.Visibility {
	case VisibilityPublic:
		conds = append(conds, "i.is_public")
	case VisibilityPrivate:
		conds = append(conds, "NOT i.is_public")
	case VisibilityShared:
		tenantPh := args.add(q.Actor.Tenant)
		conds = append(conds, memberExistsSQL(tenantPh, memberStatus, args))
	}

	if q.Marker != nil {
		conds = append(conds, markerCondSQL(q.Marker, q.Sort, args))
	}

	query := `SELECT ` + imageColumns + ` FROM images i WHERE ` +
		strings.Join(conds, " AND ") + " " + orderBySQL(q.Sort)
	if q.Limit != nil {
		query += " LIMIT " + args.add(*q.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args.args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка списка образов: %w", err)
	}
	defer rows.Close()

	var images []*model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения строки образа: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка выборки образов: %w", err)
	}

	if err := r.loadChildren(ctx, images); err != nil {
		return nil, err
	}
	return images, nil
}

// buildImageFilterConds строит условия WHERE по типизированным фильтрам.
func buildImageFilterConds(f *ImageFilters, args *argList) []string {
	var conds []string

	strCond := func(column string, c *StringCond) {
		if c == nil {
			return
		}
		if len(c.Values) == 1 {
			conds = append(conds, fmt.Sprintf("%s = %s", column, args.add(c.Values[0])))
		} else {
			conds = append(conds, fmt.Sprintf("%s = ANY(%s)", column, args.add(c.Values)))
		}
	}
	strCond("i.name", f.Name)
	strCond("i.status", f.Status)
	strCond("i.container_format", f.ContainerFormat)
	strCond("i.disk_format", f.DiskFormat)
	strCond("i.checksum", f.Checksum)
	strCond("i.id::text", f.ID)

	if f.SizeMin != nil {
		conds = append(conds, fmt.Sprintf("i.size >= %s", args.add(*f.SizeMin)))
	}
	if f.SizeMax != nil {
		conds = append(conds, fmt.Sprintf("i.size <= %s", args.add(*f.SizeMax)))
	}

	timeCond := func(column string, c *TimeCond) {
		if c == nil {
			return
		}
		conds = append(conds, fmt.Sprintf("%s %s %s", column, timeOps[c.Op], args.add(c.Value)))
	}
	timeCond("i.created_at", f.CreatedAt)
	timeCond("i.updated_at", f.UpdatedAt)

	for name, value := range f.Properties {
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM image_properties p
				WHERE p.image_id = i.id AND NOT p.deleted
				AND p.name = %s AND p.value = %s)`,
			args.add(name), args.add(value),
		))
	}

	// Пересечение: образ несёт каждый из перечисленных тегов
	for _, tag := range f.Tags {
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM image_tags t
				WHERE t.image_id = i.id AND NOT t.deleted AND t.value = %s)`,
			args.add(tag),
		))
	}

	return conds
}

// memberExistsSQL — условие существования живого членства tenant'а
// с учётом фильтра статуса ("all" — без фильтра).
func memberExistsSQL(tenantPh, memberStatus string, args *argList) string {
	cond := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM image_members m WHERE m.image_id = i.id AND NOT m.deleted AND m.member = %s",
		tenantPh,
	)
	if memberStatus != "all" {
		cond += fmt.Sprintf(" AND m.status = %s", args.add(memberStatus))
	}
	return cond + ")"
}

func (r *imageRepo) Create(ctx context.Context, img *model.Image) error {
	return r.txr.RunInTxRetry(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO images (id, name, status, is_public, owner, protected,
				size, checksum, disk_format, container_format, min_disk, min_ram,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			img.ID, img.Name, string(img.Status), img.IsPublic, img.Owner, img.Protected,
			img.Size, img.Checksum, img.DiskFormat, img.ContainerFormat,
			img.MinDisk, img.MinRAM, img.CreatedAt, img.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: образ с таким ID уже существует", ErrConflict)
			}
			return fmt.Errorf("ошибка создания образа: %w", err)
		}

		for _, value := range img.Tags {
			if err := r.insertTag(ctx, tx, img.ID, value); err != nil {
				return err
			}
		}
		for _, p := range img.Properties {
			if err := r.insertProperty(ctx, tx, img.ID, p.Name, p.Value); err != nil {
				return err
			}
		}
		for _, l := range img.Locations {
			l.ImageID = img.ID
			if err := r.insertLocation(ctx, tx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *imageRepo) Update(ctx context.Context, u ImageUpdate) error {
	img := u.Image
	return r.txr.RunInTxRetry(ctx, func(tx pgx.Tx) error {
		// Блокируем строку и проверяем optimistic-precondition до любых
		// дочерних изменений.
		var current string
		err := tx.QueryRow(ctx,
			`SELECT status FROM images WHERE id = $1 AND NOT deleted FOR UPDATE`,
			img.ID,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("ошибка блокировки образа: %w", err)
		}
		if u.FromStatus != nil && model.ImageStatus(current) != *u.FromStatus {
			return fmt.Errorf("%w: статус образа %q, ожидался %q", ErrConflict, current, *u.FromStatus)
		}

		// Дочерние коллекции применяются до финализации updated_at родителя:
		// читатель не увидит продвинутый timestamp при несверенных детях.
		if err := r.applyTagChanges(ctx, tx, img.ID, u.Tags); err != nil {
			return err
		}
		if err := r.applyPropertyChanges(ctx, tx, img.ID, u.Properties); err != nil {
			return err
		}
		if err := r.applyLocationChanges(ctx, tx, img.ID, u.Locations); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE images SET name = $2, status = $3, is_public = $4, owner = $5,
				protected = $6, size = $7, checksum = $8, disk_format = $9,
				container_format = $10, min_disk = $11, min_ram = $12, updated_at = $13
			WHERE id = $1`,
			img.ID, img.Name, string(img.Status), img.IsPublic, img.Owner,
			img.Protected, img.Size, img.Checksum, img.DiskFormat,
			img.ContainerFormat, img.MinDisk, img.MinRAM, img.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("ошибка обновления образа: %w", err)
		}
		return nil
	})
}

func (r *imageRepo) SoftDelete(ctx context.Context, id string) error {
	return r.txr.RunInTxRetry(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()

		tag, err := tx.Exec(ctx, `
			UPDATE images SET deleted = TRUE, deleted_at = $2, updated_at = $2, status = 'deleted'
			WHERE id = $1 AND NOT deleted`,
			id, now,
		)
		if err != nil {
			return fmt.Errorf("ошибка удаления образа: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		// Каскадный soft delete живых дочерних строк
		if _, err := tx.Exec(ctx, `
			UPDATE image_locations SET deleted = TRUE, deleted_at = $2, updated_at = $2, status = 'deleted'
			WHERE image_id = $1 AND NOT deleted`, id, now); err != nil {
			return fmt.Errorf("ошибка удаления локаций: %w", err)
		}
		for _, table := range []string{"image_properties", "image_tags", "image_members"} {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`
				UPDATE %s SET deleted = TRUE, deleted_at = $2, updated_at = $2
				WHERE image_id = $1 AND NOT deleted`, table), id, now); err != nil {
				return fmt.Errorf("ошибка каскадного удаления (%s): %w", table, err)
			}
		}
		return nil
	})
}

func (r *imageRepo) ListLocations(ctx context.Context, imageID string, includeDeleted bool) ([]*model.ImageLocation, error) {
	query := `
		SELECT id, image_id, address, metadata, status, created_at, updated_at, deleted_at, deleted
		FROM image_locations WHERE image_id = $1`
	if !includeDeleted {
		// Видимое множество — строки со статусом, отличным от deleted
		query += ` AND NOT deleted AND status <> 'deleted'`
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, imageID)
	if err != nil {
		return nil, fmt.Errorf("ошибка списка локаций: %w", err)
	}
	defer rows.Close()

	var locations []*model.ImageLocation
	for rows.Next() {
		l := &model.ImageLocation{}
		if err := rows.Scan(&l.ID, &l.ImageID, &l.Address, &l.Metadata, &l.Status,
			&l.CreatedAt, &l.UpdatedAt, &l.DeletedAt, &l.Deleted); err != nil {
			return nil, fmt.Errorf("ошибка чтения локации: %w", err)
		}
		if l.Address, err = r.codec.Decrypt(l.Address); err != nil {
			return nil, fmt.Errorf("локация %d: %w", l.ID, err)
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (r *imageRepo) LocationHistoryIDs(ctx context.Context, imageID string) (map[int64]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM image_locations WHERE image_id = $1`, imageID)
	if err != nil {
		return nil, fmt.Errorf("ошибка истории локаций: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (r *imageRepo) StorageUsage(ctx context.Context, owner string, excludeImageID string) (int64, error) {
	args := &argList{}
	query := `
		SELECT COALESCE(SUM(i.size * (
			SELECT COUNT(*) FROM image_locations l
			WHERE l.image_id = i.id AND NOT l.deleted
		)), 0)
		FROM images i
		WHERE i.owner = ` + args.add(owner) + `
		  AND NOT i.deleted AND i.status <> 'killed' AND i.size IS NOT NULL`
	if excludeImageID != "" {
		query += ` AND i.id <> ` + args.add(excludeImageID)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, query, args.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта занятого объёма: %w", err)
	}
	return total, nil
}

// --- Дочерние коллекции ---

func (r *imageRepo) insertTag(ctx context.Context, db DBTX, imageID, value string) error {
	_, err := db.Exec(ctx,
		`INSERT INTO image_tags (image_id, value) VALUES ($1, $2)`,
		imageID, value,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: тег %q уже существует", ErrConflict, value)
		}
		return fmt.Errorf("ошибка создания тега: %w", err)
	}
	return nil
}

func (r *imageRepo) insertProperty(ctx context.Context, db DBTX, imageID, name, value string) error {
	_, err := db.Exec(ctx,
		`INSERT INTO image_properties (image_id, name, value) VALUES ($1, $2, $3)`,
		imageID, name, value,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: свойство %q уже существует", ErrConflict, name)
		}
		return fmt.Errorf("ошибка создания свойства: %w", err)
	}
	return nil
}

func (r *imageRepo) insertLocation(ctx context.Context, db DBTX, l *model.ImageLocation) error {
	address, err := r.codec.Encrypt(l.Address)
	if err != nil {
		return fmt.Errorf("ошибка шифрования адреса: %w", err)
	}
	if l.Status == "" {
		l.Status = model.LocationStatusActive
	}
	metadata := l.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	err = db.QueryRow(ctx, `
		INSERT INTO image_locations (image_id, address, metadata, status)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		l.ImageID, address, metadata, l.Status,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания локации: %w", err)
	}
	return nil
}

func (r *imageRepo) applyTagChanges(ctx context.Context, db DBTX, imageID string, c reconcile.TagChanges) error {
	if len(c.SoftDeleteValues) > 0 {
		if _, err := db.Exec(ctx, `
			UPDATE image_tags SET deleted = TRUE, deleted_at = now(), updated_at = now()
			WHERE image_id = $1 AND NOT deleted AND value = ANY($2)`,
			imageID, c.SoftDeleteValues); err != nil {
			return fmt.Errorf("ошибка удаления тегов: %w", err)
		}
	}
	// Порядок вставки сохраняет порядок желаемого набора
	for _, value := range c.Create {
		if err := r.insertTag(ctx, db, imageID, value); err != nil {
			return err
		}
	}
	return nil
}

func (r *imageRepo) applyPropertyChanges(ctx context.Context, db DBTX, imageID string, c reconcile.PropertyChanges) error {
	if len(c.SoftDeleteIDs) > 0 {
		if _, err := db.Exec(ctx, `
			UPDATE image_properties SET deleted = TRUE, deleted_at = now(), updated_at = now()
			WHERE id = ANY($1)`, c.SoftDeleteIDs); err != nil {
			return fmt.Errorf("ошибка удаления свойств: %w", err)
		}
	}
	for _, u := range c.Update {
		if _, err := db.Exec(ctx, `
			UPDATE image_properties SET value = $2, updated_at = now() WHERE id = $1`,
			u.ID, u.Value); err != nil {
			return fmt.Errorf("ошибка обновления свойства: %w", err)
		}
	}
	for _, p := range c.Create {
		if err := r.insertProperty(ctx, db, imageID, p.Name, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func (r *imageRepo) applyLocationChanges(ctx context.Context, db DBTX, imageID string, c reconcile.LocationChanges) error {
	if len(c.SoftDeleteIDs) > 0 {
		if _, err := db.Exec(ctx, `
			UPDATE image_locations SET deleted = TRUE, deleted_at = now(), updated_at = now(), status = 'deleted'
			WHERE id = ANY($1)`, c.SoftDeleteIDs); err != nil {
			return fmt.Errorf("ошибка удаления локаций: %w", err)
		}
	}
	for _, l := range c.Update {
		address, err := r.codec.Encrypt(l.Address)
		if err != nil {
			return fmt.Errorf("ошибка шифрования адреса: %w", err)
		}
		metadata := l.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		if _, err := db.Exec(ctx, `
			UPDATE image_locations SET address = $2, metadata = $3, status = $4, updated_at = now()
			WHERE id = $1`,
			l.ID, address, metadata, l.Status); err != nil {
			return fmt.Errorf("ошибка обновления локации: %w", err)
		}
	}
	for _, l := range c.Create {
		l.ImageID = imageID
		if err := r.insertLocation(ctx, db, l); err != nil {
			return err
		}
	}
	return nil
}

// loadChildren загружает живые дочерние коллекции пачкой по ANY(ids).
func (r *imageRepo) loadChildren(ctx context.Context, images []*model.Image) error {
	if len(images) == 0 {
		return nil
	}
	byID := make(map[string]*model.Image, len(images))
	ids := make([]string, 0, len(images))
	for _, img := range images {
		byID[img.ID] = img
		ids = append(ids, img.ID)
	}

	// Теги — в порядке добавления (по id)
	rows, err := r.pool.Query(ctx, `
		SELECT image_id, value FROM image_tags
		WHERE image_id = ANY($1) AND NOT deleted ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("ошибка загрузки тегов: %w", err)
	}
	for rows.Next() {
		var imageID, value string
		if err := rows.Scan(&imageID, &value); err != nil {
			rows.Close()
			return err
		}
		byID[imageID].Tags = append(byID[imageID].Tags, value)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, image_id, name, value, created_at, updated_at FROM image_properties
		WHERE image_id = ANY($1) AND NOT deleted ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("ошибка загрузки свойств: %w", err)
	}
	for rows.Next() {
		p := &model.ImageProperty{}
		if err := rows.Scan(&p.ID, &p.ImageID, &p.Name, &p.Value, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return err
		}
		byID[p.ImageID].Properties = append(byID[p.ImageID].Properties, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, image_id, address, metadata, status, created_at, updated_at FROM image_locations
		WHERE image_id = ANY($1) AND NOT deleted AND status <> 'deleted' ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("ошибка загрузки локаций: %w", err)
	}
	for rows.Next() {
		l := &model.ImageLocation{}
		if err := rows.Scan(&l.ID, &l.ImageID, &l.Address, &l.Metadata, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			rows.Close()
			return err
		}
		if l.Address, err = r.codec.Decrypt(l.Address); err != nil {
			rows.Close()
			return fmt.Errorf("локация %d: %w", l.ID, err)
		}
		byID[l.ImageID].Locations = append(byID[l.ImageID].Locations, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT id, image_id, member, status, can_share, created_at, updated_at FROM image_members
		WHERE image_id = ANY($1) AND NOT deleted ORDER BY created_at`, ids)
	if err != nil {
		return fmt.Errorf("ошибка загрузки членов: %w", err)
	}
	for rows.Next() {
		m := &model.ImageMember{}
		if err := rows.Scan(&m.ID, &m.ImageID, &m.Member, &m.Status, &m.CanShare, &m.CreatedAt, &m.UpdatedAt); err != nil {
			rows.Close()
			return err
		}
		byID[m.ImageID].Members = append(byID[m.ImageID].Members, m)
	}
	rows.Close()
	return rows.Err()
}
