// Пакет reconcile — сверка дочерних коллекций образа.
//
// Чистые diff-процедуры: по желаемому итоговому набору и текущему живому
// набору вычисляют, что создать, обновить и soft-delete'нуть. Применение
// изменений — атомарно, в транзакции операции каталога (слой repository).
// Повторный запуск с тем же желаемым набором — no-op (идемпотентность).
package reconcile

import (
	"errors"
	"fmt"

	"github.com/laoyigrace/imagestore/internal/domain/model"
)

// ErrLocationResurrected — попытка воскресить удалённую локацию:
// идентификатор существует только в истории и не может получить новый адрес.
var ErrLocationResurrected = errors.New("идентификатор локации уже использован удалённой записью")

// ErrLocationUnknown — желаемый набор ссылается на идентификатор,
// который никогда не назначался этому образу.
var ErrLocationUnknown = errors.New("неизвестный идентификатор локации")

// TagChanges — результат сверки тегов.
type TagChanges struct {
	// Create — новые значения в порядке желаемого набора
	Create []string
	// SoftDeleteValues — живые теги, отсутствующие в желаемом наборе.
	// Сопоставление по значению: живой тег уникален в пределах образа.
	SoftDeleteValues []string
}

// Empty возвращает true, если сверка не требует изменений.
func (c TagChanges) Empty() bool {
	return len(c.Create) == 0 && len(c.SoftDeleteValues) == 0
}

// Tags сверяет живые теги с желаемым упорядоченным набором значений.
// Сопоставление — по значению; порядок новых тегов сохраняет порядок desired.
// Повторы в desired игнорируются (остаётся первое вхождение).
func Tags(existing []string, desired []string) TagChanges {
	var changes TagChanges

	live := make(map[string]bool, len(existing))
	for _, v := range existing {
		live[v] = true
	}

	wanted := make(map[string]bool, len(desired))
	for _, v := range desired {
		if wanted[v] {
			continue
		}
		wanted[v] = true
		if !live[v] {
			changes.Create = append(changes.Create, v)
		}
	}

	for _, v := range existing {
		if !wanted[v] {
			changes.SoftDeleteValues = append(changes.SoftDeleteValues, v)
		}
	}

	return changes
}

// PropertyValue — создаваемое свойство.
type PropertyValue struct {
	Name  string
	Value string
}

// PropertyUpdate — изменение значения живого свойства на месте
// (история записи сохраняется, soft-delete + create не выполняется).
type PropertyUpdate struct {
	ID    int64
	Value string
}

// PropertyChanges — результат сверки свойств.
type PropertyChanges struct {
	Create        []PropertyValue
	Update        []PropertyUpdate
	SoftDeleteIDs []int64
}

// Empty возвращает true, если сверка не требует изменений.
func (c PropertyChanges) Empty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0 && len(c.SoftDeleteIDs) == 0
}

// Properties сверяет живые свойства с желаемым набором.
// Сопоставление — по имени. purge=true — полная замена: свойства,
// отсутствующие в desired, получают soft delete; purge=false —
// merge-обновление: отсутствующие остаются нетронутыми.
func Properties(existing []*model.ImageProperty, desired map[string]string, purge bool) PropertyChanges {
	var changes PropertyChanges

	live := make(map[string]*model.ImageProperty, len(existing))
	for _, p := range existing {
		live[p.Name] = p
	}

	for name, value := range desired {
		p, ok := live[name]
		switch {
		case !ok:
			changes.Create = append(changes.Create, PropertyValue{Name: name, Value: value})
		case p.Value != value:
			changes.Update = append(changes.Update, PropertyUpdate{ID: p.ID, Value: value})
		}
	}

	if purge {
		for _, p := range existing {
			if _, ok := desired[p.Name]; !ok {
				changes.SoftDeleteIDs = append(changes.SoftDeleteIDs, p.ID)
			}
		}
	}

	return changes
}

// LocationChanges — результат сверки локаций.
type LocationChanges struct {
	// Create — записи без идентификатора (назначается при вставке)
	Create []*model.ImageLocation
	// Update — записи с живым идентификатором: адрес, метаданные, статус
	Update []*model.ImageLocation
	// SoftDeleteIDs — живые локации, отсутствующие в желаемом наборе
	SoftDeleteIDs []int64
}

// Empty возвращает true, если сверка не требует изменений.
func (c LocationChanges) Empty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0 && len(c.SoftDeleteIDs) == 0
}

// Locations сверяет живые локации с желаемым набором.
// Сопоставление — по идентификатору. historyIDs — все идентификаторы,
// когда-либо назначенные образу (включая soft-deleted): идентификатор,
// существующий только в истории, не воскрешается под новым адресом —
// это конфликт.
func Locations(existingLive []*model.ImageLocation, historyIDs map[int64]bool, desired []*model.ImageLocation) (LocationChanges, error) {
	var changes LocationChanges

	live := make(map[int64]*model.ImageLocation, len(existingLive))
	for _, l := range existingLive {
		live[l.ID] = l
	}

	wanted := make(map[int64]bool, len(desired))
	for _, d := range desired {
		if d.ID == 0 {
			changes.Create = append(changes.Create, d)
			continue
		}
		if cur, ok := live[d.ID]; ok {
			wanted[d.ID] = true
			if !sameLocation(cur, d) {
				changes.Update = append(changes.Update, d)
			}
			continue
		}
		if historyIDs[d.ID] {
			return LocationChanges{}, fmt.Errorf("%w: id=%d", ErrLocationResurrected, d.ID)
		}
		return LocationChanges{}, fmt.Errorf("%w: id=%d", ErrLocationUnknown, d.ID)
	}

	for _, l := range existingLive {
		if !wanted[l.ID] {
			changes.SoftDeleteIDs = append(changes.SoftDeleteIDs, l.ID)
		}
	}

	return changes, nil
}

// sameLocation возвращает true, если изменяемые поля локации совпадают.
func sameLocation(a, b *model.ImageLocation) bool {
	if a.Address != b.Address || a.Status != b.Status {
		return false
	}
	if len(a.Metadata) != len(b.Metadata) {
		return false
	}
	for k, v := range a.Metadata {
		if b.Metadata[k] != v {
			return false
		}
	}
	return true
}
