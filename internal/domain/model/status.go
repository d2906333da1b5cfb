// status.go — конечный автомат статусов образа.
//
// Жизненный цикл:
//
//	queued → saving → active → deactivated/killed/pending_delete → deleted
//
// Единственный обратный переход: deactivated → active (реактивация админом).
// pending_delete → deleted выполняется внешним таймером отложенного удаления.
package model

import "fmt"

// ImageStatus — статус жизненного цикла образа.
type ImageStatus string

const (
	// StatusQueued — запись создана, данные не загружались
	StatusQueued ImageStatus = "queued"
	// StatusSaving — данные загружаются
	StatusSaving ImageStatus = "saving"
	// StatusActive — образ готов к использованию
	StatusActive ImageStatus = "active"
	// StatusKilled — загрузка данных завершилась ошибкой
	StatusKilled ImageStatus = "killed"
	// StatusPendingDelete — отложенное удаление, ждёт grace-период
	StatusPendingDelete ImageStatus = "pending_delete"
	// StatusDeleted — терминальный статус
	StatusDeleted ImageStatus = "deleted"
	// StatusDeactivated — образ временно выведен из обращения
	StatusDeactivated ImageStatus = "deactivated"
)

// validStatuses — множество допустимых статусов.
var validStatuses = map[ImageStatus]bool{
	StatusQueued:        true,
	StatusSaving:        true,
	StatusActive:        true,
	StatusKilled:        true,
	StatusPendingDelete: true,
	StatusDeleted:       true,
	StatusDeactivated:   true,
}

// validStatusTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validStatusTransitions = map[ImageStatus]map[ImageStatus]bool{
	StatusQueued:        {StatusSaving: true, StatusActive: true, StatusKilled: true, StatusDeleted: true},
	StatusSaving:        {StatusActive: true, StatusKilled: true, StatusDeleted: true},
	StatusActive:        {StatusDeactivated: true, StatusKilled: true, StatusPendingDelete: true, StatusDeleted: true},
	StatusDeactivated:   {StatusActive: true, StatusDeleted: true}, // реактивация — действие администратора
	StatusKilled:        {StatusDeleted: true},
	StatusPendingDelete: {StatusDeleted: true},
	StatusDeleted:       {},
}

// IsValidStatus возвращает true, если s — допустимый статус образа.
func IsValidStatus(s ImageStatus) bool {
	return validStatuses[s]
}

// CanTransition возвращает true, если переход from → to допустим.
// Переход в тот же статус всегда допустим (обновление без смены статуса).
func CanTransition(from, to ImageStatus) bool {
	if from == to {
		return true
	}
	return validStatusTransitions[from][to]
}

// CheckTransition возвращает ошибку с описанием недопустимого перехода.
func CheckTransition(from, to ImageStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("недопустимый переход статуса: %s → %s", from, to)
	}
	return nil
}
