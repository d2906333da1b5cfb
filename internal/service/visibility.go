package service

import (
	"github.com/laoyigrace/imagestore/internal/domain/model"
)

// MemberStatusAll — специальное значение фильтра статуса членства:
// учитывать связь независимо от её состояния.
const MemberStatusAll = "all"

// CanSee определяет, виден ли образ актору. Правила в порядке проверки:
//
//  1. администратор видит всё;
//  2. образ без владельца виден всем;
//  3. публичный образ виден всем;
//  4. владелец видит свои образы;
//  5. арендатор с живой записью членства видит разделённый с ним образ —
//     по умолчанию только при статусе accepted, но memberStatus может
//     расширить охват (MemberStatusAll — любой статус).
//
// Список членов берётся из img.Members, поэтому запись должна быть
// загружена вместе с дочерними коллекциями.
func CanSee(actor model.Actor, img *model.Image, memberStatus string) bool {
	if actor.IsAdmin {
		return true
	}
	if img.Owner == nil || *img.Owner == "" {
		return true
	}
	if img.IsPublic {
		return true
	}
	if *img.Owner == actor.Tenant {
		return true
	}
	if memberStatus == "" {
		memberStatus = model.MemberStatusAccepted
	}
	for _, m := range img.Members {
		if m.Deleted || m.Member != actor.Tenant {
			continue
		}
		if memberStatus == MemberStatusAll || m.Status == memberStatus {
			return true
		}
	}
	return false
}

// CanMutate определяет право на изменение образа: администратор либо владелец.
// Видимость через членство никогда не даёт права записи.
func CanMutate(actor model.Actor, img *model.Image) bool {
	if actor.IsAdmin {
		return true
	}
	return img.Owner != nil && *img.Owner == actor.Tenant
}
