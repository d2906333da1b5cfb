package model

import "time"

// Статусы членства в шаринге образа.
const (
	MemberStatusPending  = "pending"
	MemberStatusAccepted = "accepted"
	MemberStatusRejected = "rejected"
)

// ValidMemberStatus возвращает true для допустимого статуса членства.
func ValidMemberStatus(s string) bool {
	return s == MemberStatusPending || s == MemberStatusAccepted || s == MemberStatusRejected
}

// ImageMember — грант доступа к приватному образу другому tenant'у.
//
// Инвариант: не более одной строки на пару (image, member), включая
// soft-deleted историю — повторное добавление переиспользует старую строку
// (перезаписывает её поля), сохраняя единственную auditable-запись.
type ImageMember struct {
	// ID — UUID записи членства
	ID string
	// ImageID — UUID образа
	ImageID string
	// Member — tenant, которому выдан доступ
	Member string
	// Status — статус членства (pending, accepted, rejected)
	Status string
	// CanShare — член может передавать доступ дальше
	CanShare bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Deleted   bool
}
