package model

import "time"

// Image — запись образа в каталоге.
// Хранится в таблице images, дочерние коллекции — в отдельных таблицах.
type Image struct {
	// ID — UUID образа (задаётся при создании, неизменяемый)
	ID string
	// Name — имя образа (опционально)
	Name *string
	// Status — статус жизненного цикла (см. status.go)
	Status ImageStatus
	// IsPublic — публичный образ виден всем tenant'ам
	IsPublic bool
	// Owner — tenant-владелец (nil — образ без владельца, виден всем)
	Owner *string
	// Protected — защита от удаления
	Protected bool
	// Size — размер данных образа в байтах (nil — данные ещё не загружены)
	Size *int64
	// Checksum — MD5 контрольная сумма данных (32 hex-символа)
	Checksum *string
	// DiskFormat — формат диска (qcow2, raw, vmdk, ...)
	DiskFormat *string
	// ContainerFormat — формат контейнера (bare, ovf, ...)
	ContainerFormat *string
	// MinDisk — минимальный размер диска для запуска, GB
	MinDisk int32
	// MinRAM — минимальный объём RAM для запуска, MB
	MinRAM int32
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
	// DeletedAt — время soft delete (nil для живых записей)
	DeletedAt *time.Time
	// Deleted — признак soft delete
	Deleted bool

	// Tags — живые теги в порядке добавления
	Tags []string
	// Properties — живые пользовательские свойства
	Properties []*ImageProperty
	// Locations — живые локации данных
	Locations []*ImageLocation
	// Members — живые члены шаринга
	Members []*ImageMember
}

// ImageProperty — пользовательское свойство key/value образа.
// Инвариант: не более одного живого свойства на пару (image, name).
type ImageProperty struct {
	ID        int64
	ImageID   string
	Name      string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Deleted   bool
}

// ImageTag — текстовая метка образа.
// Порядок добавления живых тегов значим и сохраняется при reconciliation.
type ImageTag struct {
	ID        int64
	ImageID   string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Deleted   bool
}

// ImageLocation — одна физическая копия данных образа.
type ImageLocation struct {
	// ID — числовой идентификатор, назначается при создании и не переиспользуется
	ID int64
	// ImageID — UUID образа-владельца
	ImageID string
	// Address — URL данных (шифруется at rest через crypt.Codec)
	Address string
	// Metadata — произвольные метаданные локации
	Metadata map[string]string
	// Status — статус локации (active, pending_delete, deleted)
	Status string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Deleted   bool
}

// Статусы локации.
const (
	LocationStatusActive        = "active"
	LocationStatusPendingDelete = "pending_delete"
	LocationStatusDeleted       = "deleted"
)

// ValidLocationStatus возвращает true для допустимого статуса локации.
func ValidLocationStatus(s string) bool {
	return s == LocationStatusActive || s == LocationStatusPendingDelete || s == LocationStatusDeleted
}
