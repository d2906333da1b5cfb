// filters.go — фильтры списка образов.
//
// Транспортный слой передаёт фильтры строковым словарём
// (значения с операторными префиксами in:/eq:/lt:/...); ParseImageFilters
// разбирает его в закрытый набор типизированных условий один раз на границе,
// дальше query builder интерпретирует их без разбора строк.
package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StringCond — условие на строковое поле: точное значение или набор значений.
type StringCond struct {
	// Values — допустимые значения (одно — равенство, несколько — IN)
	Values []string
}

// Операторы временных условий.
const (
	TimeOpEq  = "eq"
	TimeOpNeq = "neq"
	TimeOpLt  = "lt"
	TimeOpLte = "lte"
	TimeOpGt  = "gt"
	TimeOpGte = "gte"
)

// TimeCond — условие на временное поле с оператором сравнения.
type TimeCond struct {
	Op    string
	Value time.Time
}

// Значения фильтра visibility.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
)

// ImageFilters — типизированные фильтры списка образов.
type ImageFilters struct {
	// Условия на перечислимые строковые поля
	Name            *StringCond
	Status          *StringCond
	ContainerFormat *StringCond
	DiskFormat      *StringCond
	Checksum        *StringCond
	ID              *StringCond

	// Диапазон размера
	SizeMin *int64
	SizeMax *int64

	// Временные условия
	CreatedAt *TimeCond
	UpdatedAt *TimeCond

	// Свойство-равенство: property-<name>=<value>
	Properties map[string]string
	// Пересечение тегов: образ должен нести все перечисленные теги
	Tags []string

	// Видимость: public, private, shared (пусто — без фильтра)
	Visibility string

	// Показ удалённых строк (только администратор)
	Deleted *bool
	// changes-since: изменённые после метки, включая недавно удалённые
	ChangesSince *time.Time
}

// ParseImageFilters разбирает строковый словарь фильтров транспортного слоя.
// Неизвестный ключ, оператор или значение — ошибка клиента.
func ParseImageFilters(params map[string]string) (*ImageFilters, error) {
	f := &ImageFilters{}

	for key, value := range params {
		switch {
		case key == "name" || key == "status" || key == "container_format" ||
			key == "disk_format" || key == "checksum" || key == "id":
			cond, err := parseStringCond(value)
			if err != nil {
				return nil, fmt.Errorf("фильтр %s: %w", key, err)
			}
			switch key {
			case "name":
				f.Name = cond
			case "status":
				f.Status = cond
			case "container_format":
				f.ContainerFormat = cond
			case "disk_format":
				f.DiskFormat = cond
			case "checksum":
				f.Checksum = cond
			case "id":
				f.ID = cond
			}

		case key == "size_min" || key == "size_max":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("фильтр %s: некорректное число %q", key, value)
			}
			if key == "size_min" {
				f.SizeMin = &n
			} else {
				f.SizeMax = &n
			}

		case key == "created_at" || key == "updated_at":
			cond, err := parseTimeCond(value)
			if err != nil {
				return nil, fmt.Errorf("фильтр %s: %w", key, err)
			}
			if key == "created_at" {
				f.CreatedAt = cond
			} else {
				f.UpdatedAt = cond
			}

		case strings.HasPrefix(key, "property-"):
			name := strings.TrimPrefix(key, "property-")
			if name == "" {
				return nil, fmt.Errorf("фильтр %q: пустое имя свойства", key)
			}
			if f.Properties == nil {
				f.Properties = make(map[string]string)
			}
			f.Properties[name] = value

		case key == "tags":
			tags, err := splitQuotedCSV(strings.Trim(value, "[]"))
			if err != nil {
				return nil, fmt.Errorf("фильтр tags: %w", err)
			}
			f.Tags = tags

		case key == "visibility":
			if value != VisibilityPublic && value != VisibilityPrivate && value != VisibilityShared {
				return nil, fmt.Errorf("фильтр visibility: недопустимое значение %q, допустимые: public, private, shared", value)
			}
			f.Visibility = value

		case key == "deleted":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("фильтр deleted: некорректное булево значение %q", value)
			}
			f.Deleted = &b

		case key == "changes-since":
			ts, err := parseISO8601(value)
			if err != nil {
				return nil, fmt.Errorf("фильтр changes-since: %w", err)
			}
			f.ChangesSince = &ts

		default:
			return nil, fmt.Errorf("неизвестный фильтр %q", key)
		}
	}

	return f, nil
}

// parseStringCond разбирает значение строкового фильтра:
// "in:a,b,c" — набор значений (с поддержкой кавычек), "eq:x" — одно значение,
// без префикса — буквальное точное значение.
func parseStringCond(value string) (*StringCond, error) {
	switch {
	case strings.HasPrefix(value, "in:"):
		values, err := splitQuotedCSV(strings.TrimPrefix(value, "in:"))
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("оператор in: без значений")
		}
		return &StringCond{Values: values}, nil
	case strings.HasPrefix(value, "eq:"):
		return &StringCond{Values: []string{strings.TrimPrefix(value, "eq:")}}, nil
	default:
		return &StringCond{Values: []string{value}}, nil
	}
}

// timeOps — допустимые операторные префиксы временных фильтров → SQL-операторы.
var timeOps = map[string]string{
	TimeOpEq:  "=",
	TimeOpNeq: "<>",
	TimeOpLt:  "<",
	TimeOpLte: "<=",
	TimeOpGt:  ">",
	TimeOpGte: ">=",
}

// parseTimeCond разбирает значение временного фильтра вида "lt:2024-01-01T00:00:00Z".
// Без операторного префикса — равенство.
func parseTimeCond(value string) (*TimeCond, error) {
	op := TimeOpEq
	if i := strings.Index(value, ":"); i > 0 {
		if _, ok := timeOps[value[:i]]; ok {
			op = value[:i]
			value = value[i+1:]
		}
	}
	ts, err := parseISO8601(value)
	if err != nil {
		return nil, err
	}
	return &TimeCond{Op: op, Value: ts}, nil
}

// parseISO8601 разбирает временную метку ISO-8601.
func parseISO8601(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("некорректная временная метка %q (ожидается ISO-8601)", value)
}

// splitQuotedCSV разбирает список значений, разделённых запятыми,
// с поддержкой значений в двойных кавычках (внутри допустимы запятые).
func splitQuotedCSV(s string) ([]string, error) {
	var result []string
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			v := strings.TrimSpace(cur.String())
			if v != "" {
				result = append(result, v)
			}
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("незакрытая кавычка в списке значений %q", s)
	}
	if v := strings.TrimSpace(cur.String()); v != "" {
		result = append(result, v)
	}
	return result, nil
}
