// pagination.go — keyset-пагинация списка образов.
//
// Страницы строятся не по offset, а по маркеру — последней строке предыдущей
// страницы: условие продолжения — классическая лексикографическая дизъюнкция
// по составному ключу сортировки. NULL-значения ключей подменяются
// детерминированным значением по типу колонки ('' / 0 / epoch), чтобы
// участвовать в стабильном полном порядке, а не выпадать из выборки.
package repository

import (
	"fmt"
	"strings"

	"github.com/laoyigrace/imagestore/internal/domain/model"
)

// SortDir — направление сортировки.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// SortKey — один ключ составной сортировки.
type SortKey struct {
	Field string
	Dir   SortDir
}

// sortColumnKind — тип колонки для подмены NULL при сравнении.
type sortColumnKind int

const (
	kindText sortColumnKind = iota
	kindNumeric
	kindTime
)

// sortableImageColumns — допустимые ключи сортировки и их типы.
type sortColumn struct {
	column string
	kind   sortColumnKind
}

var sortableImageColumns = map[string]sortColumn{
	"id":               {"i.id", kindText},
	"name":             {"i.name", kindText},
	"status":           {"i.status", kindText},
	"container_format": {"i.container_format", kindText},
	"disk_format":      {"i.disk_format", kindText},
	"checksum":         {"i.checksum", kindText},
	"owner":            {"i.owner", kindText},
	"size":             {"i.size", kindNumeric},
	"min_disk":         {"i.min_disk", kindNumeric},
	"min_ram":          {"i.min_ram", kindNumeric},
	"created_at":       {"i.created_at", kindTime},
	"updated_at":       {"i.updated_at", kindTime},
}

// NormalizeImageSort строит итоговый список ключей сортировки.
//
// keys — упорядоченный список имён атрибутов; dirs — направления: пусто
// (desc для всех), одно (применяется ко всем ключам) или по одному на ключ.
// Если список не содержит первичный идентификатор, в конец добавляются
// created_at и id с базовым направлением — полный порядок гарантирован
// даже при совпадающих значениях ключей.
// Неизвестный ключ сортировки — ошибка клиента, не silent fallback.
func NormalizeImageSort(keys []string, dirs []string) ([]SortKey, error) {
	if len(keys) == 0 {
		keys = []string{"created_at"}
	}

	baseDir := SortDesc
	if len(dirs) == 1 {
		d, err := parseSortDir(dirs[0])
		if err != nil {
			return nil, err
		}
		baseDir = d
	}

	var sort []SortKey
	switch {
	case len(dirs) <= 1:
		for _, k := range keys {
			sort = append(sort, SortKey{Field: k, Dir: baseDir})
		}
	case len(dirs) == len(keys):
		for i, k := range keys {
			d, err := parseSortDir(dirs[i])
			if err != nil {
				return nil, err
			}
			sort = append(sort, SortKey{Field: k, Dir: d})
		}
	default:
		return nil, fmt.Errorf("число направлений сортировки (%d) не совпадает с числом ключей (%d)", len(dirs), len(keys))
	}

	seen := make(map[string]bool, len(sort))
	for _, sk := range sort {
		if _, ok := sortableImageColumns[sk.Field]; !ok {
			return nil, fmt.Errorf("недопустимый ключ сортировки %q", sk.Field)
		}
		if seen[sk.Field] {
			return nil, fmt.Errorf("повторяющийся ключ сортировки %q", sk.Field)
		}
		seen[sk.Field] = true
	}

	// Детерминированный tie-break
	if !seen["id"] {
		if !seen["created_at"] {
			sort = append(sort, SortKey{Field: "created_at", Dir: baseDir})
		}
		sort = append(sort, SortKey{Field: "id", Dir: baseDir})
	}

	return sort, nil
}

func parseSortDir(s string) (SortDir, error) {
	switch s {
	case "asc":
		return SortAsc, nil
	case "desc":
		return SortDesc, nil
	default:
		return "", fmt.Errorf("недопустимое направление сортировки %q, допустимые: asc, desc", s)
	}
}

// sortExpr возвращает SQL-выражение колонки с подменой NULL по типу.
func sortExpr(col sortColumn) string {
	switch col.kind {
	case kindText:
		return fmt.Sprintf("COALESCE(%s::text, '')", col.column)
	case kindNumeric:
		return fmt.Sprintf("COALESCE(%s, 0)", col.column)
	default:
		return fmt.Sprintf("COALESCE(%s, 'epoch'::timestamptz)", col.column)
	}
}

// orderBySQL строит ORDER BY по итоговому списку ключей.
func orderBySQL(sort []SortKey) string {
	parts := make([]string, 0, len(sort))
	for _, sk := range sort {
		col := sortableImageColumns[sk.Field]
		parts = append(parts, fmt.Sprintf("%s %s", sortExpr(col), strings.ToUpper(string(sk.Dir))))
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// markerValue возвращает значение ключа сортировки маркерной записи
// с той же подменой NULL, что и sortExpr.
func markerValue(img *model.Image, field string) any {
	switch field {
	case "id":
		return img.ID
	case "name":
		return strOrEmpty(img.Name)
	case "status":
		return string(img.Status)
	case "container_format":
		return strOrEmpty(img.ContainerFormat)
	case "disk_format":
		return strOrEmpty(img.DiskFormat)
	case "checksum":
		return strOrEmpty(img.Checksum)
	case "owner":
		return strOrEmpty(img.Owner)
	case "size":
		if img.Size == nil {
			return int64(0)
		}
		return *img.Size
	case "min_disk":
		return img.MinDisk
	case "min_ram":
		return img.MinRAM
	case "created_at":
		return img.CreatedAt
	case "updated_at":
		return img.UpdatedAt
	default:
		return nil
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// markerCondSQL строит условие продолжения после маркерной записи:
// для ключей k1..kn строка включается, если
// (k1 строго дальше marker.k1) OR (k1 = marker.k1 AND k2 строго дальше ...) OR ...
// «Дальше» — '>' для asc и '<' для desc соответствующего ключа.
func markerCondSQL(marker *model.Image, sort []SortKey, args *argList) string {
	// Заранее нумеруем аргументы ключей маркера: каждый используется
	// и в равенствах, и в строгом сравнении.
	placeholders := make([]string, len(sort))
	for i, sk := range sort {
		placeholders[i] = args.add(markerValue(marker, sk.Field))
	}

	var disjuncts []string
	for i, sk := range sort {
		var conjuncts []string
		for j := 0; j < i; j++ {
			prev := sortableImageColumns[sort[j].Field]
			conjuncts = append(conjuncts, fmt.Sprintf("%s = %s", sortExpr(prev), placeholders[j]))
		}
		op := ">"
		if sk.Dir == SortDesc {
			op = "<"
		}
		col := sortableImageColumns[sk.Field]
		conjuncts = append(conjuncts, fmt.Sprintf("%s %s %s", sortExpr(col), op, placeholders[i]))
		disjuncts = append(disjuncts, "("+strings.Join(conjuncts, " AND ")+")")
	}

	return "(" + strings.Join(disjuncts, " OR ") + ")"
}

// argList — накопитель нумерованных аргументов SQL-запроса.
type argList struct {
	args []any
}

// add добавляет аргумент и возвращает его placeholder ($N).
func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return fmt.Sprintf("$%d", len(a.args))
}
