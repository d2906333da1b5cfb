// errors.go — ошибки бизнес-логики сервисного слоя.
//
// Таксономия подобрана под маппинг транспортного слоя: каждая ошибка несёт
// достаточно структурных деталей, чтобы контроллер выбрал статус ответа
// без повторного вывода контекста.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — запись отсутствует или не видна актору.
	// Обе причины намеренно слиты: существование чужих приватных
	// образов не раскрывается.
	ErrNotFound = errors.New("образ не найден")
	// ErrForbidden — запись видна, но актору не хватает прав на изменение,
	// либо не-администратор запросил административное действие.
	ErrForbidden = errors.New("операция запрещена")
	// ErrConflict — нарушено optimistic-precondition или дублируется уникальный ключ.
	ErrConflict = errors.New("конфликт состояния")
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("ошибка валидации")
	// ErrLimitExceeded — превышена квота (см. LimitExceededError).
	ErrLimitExceeded = errors.New("превышена квота")
	// ErrStorage — неожиданная ошибка хранилища (после исчерпания повторов).
	ErrStorage = errors.New("ошибка хранилища")
)

// LimitExceededError — превышение квоты с деталями для пользовательского отчёта.
// errors.Is(err, ErrLimitExceeded) возвращает true.
type LimitExceededError struct {
	// Resource — измерение квоты: properties, tags, members, locations, storage
	Resource string
	// Attempted — запрошенное значение (0 — размер неизвестен заранее)
	Attempted int64
	// Maximum — настроенный максимум
	Maximum int64
	// Remaining — остаток байтовой квоты на момент отказа (для storage)
	Remaining int64
}

func (e *LimitExceededError) Error() string {
	if e.Resource == "storage" {
		return fmt.Sprintf("превышена квота хранилища: запрошено %d байт, остаток %d байт (максимум %d)",
			e.Attempted, e.Remaining, e.Maximum)
	}
	return fmt.Sprintf("превышена квота %s: запрошено %d при максимуме %d",
		e.Resource, e.Attempted, e.Maximum)
}

func (e *LimitExceededError) Unwrap() error { return ErrLimitExceeded }
