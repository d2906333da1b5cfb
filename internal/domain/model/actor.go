// actor.go — субъект операций каталога.
// Логика определения административных привилегий: роли приходят из IdP
// через транспортный слой; привилегию можно только получить по роли,
// сервисный слой её не переопределяет.
package model

import "strings"

// RoleAdmin — роль IdP, дающая административные привилегии каталога.
const RoleAdmin = "admin"

// Actor — субъект, от имени которого выполняется операция каталога.
// Формируется транспортным слоем из аутентифицированного запроса.
type Actor struct {
	// Tenant — идентификатор tenant'а
	Tenant string
	// IsAdmin — администратор видит и изменяет любые записи
	IsAdmin bool
}

// NewActor строит субъект по идентификатору tenant'а и ролям из IdP.
// Сравнение ролей регистронезависимое.
func NewActor(tenant string, roles []string) Actor {
	return Actor{
		Tenant:  tenant,
		IsAdmin: HasRole(roles, RoleAdmin),
	}
}

// HasRole возвращает true, если набор ролей содержит искомую.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}
