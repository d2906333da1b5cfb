// Пакет quota — конфигурация квот каталога образов.
//
// Квоты передаются явным значением Config через конструкторы сервисов,
// а не читаются из глобального состояния: один и тот же каталог можно
// тестировать с разными квотами.
package quota

import (
	"fmt"
	"strings"
)

// Config — квоты одного tenant'а.
// Отрицательное значение счётной квоты означает «без ограничений».
type Config struct {
	// ImageProperties — максимум живых свойств на образ
	ImageProperties int
	// ImageTags — максимум живых тегов на образ
	ImageTags int
	// ImageMembers — максимум живых членов шаринга на образ
	ImageMembers int
	// ImageLocations — максимум живых локаций на образ
	ImageLocations int
	// UserStorage — суммарный объём данных tenant'а в байтах (<= 0 — без ограничений)
	UserStorage int64
}

// Default возвращает квоты по умолчанию.
func Default() Config {
	return Config{
		ImageProperties: 128,
		ImageTags:       128,
		ImageMembers:    128,
		ImageLocations:  10,
		UserStorage:     0,
	}
}

// byteUnits — множители единиц измерения (binary, по основанию 1024).
var byteUnits = map[string]int64{
	"":   1,
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
	"TB": 1024 * 1024 * 1024 * 1024,
}

// ParseByteSize разбирает строку квоты вида "<целое>(B|KB|MB|GB|TB)?"
// (без пробела) в количество байт. Единицы binary: 1KB = 1024B.
// Пустая строка, ноль и отрицательные значения означают «без ограничений»
// и возвращаются как 0.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	// Отделяем числовую часть от суффикса единицы
	i := 0
	if s[0] == '-' {
		i = 1
	}
	digits := i
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits == i {
		return 0, fmt.Errorf("некорректное значение квоты %q: нет числовой части", s)
	}

	var value int64
	for _, c := range s[i:digits] {
		d := int64(c - '0')
		if value > (1<<63-1-d)/10 {
			return 0, fmt.Errorf("некорректное значение квоты %q: переполнение", s)
		}
		value = value*10 + d
	}

	unit := strings.ToUpper(s[digits:])
	mult, ok := byteUnits[unit]
	if !ok {
		return 0, fmt.Errorf("некорректная единица квоты %q: допустимые B, KB, MB, GB, TB", s)
	}

	if s[0] == '-' || value == 0 {
		// Ноль и отрицательные — без ограничений
		return 0, nil
	}
	if value > (1<<63-1)/mult {
		return 0, fmt.Errorf("некорректное значение квоты %q: переполнение", s)
	}
	return value * mult, nil
}
