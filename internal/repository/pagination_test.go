package repository

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/laoyigrace/imagestore/internal/domain/model"
)

// TestNormalizeImageSort проверяет нормализацию ключей сортировки
// и автоматический tie-break.
func TestNormalizeImageSort(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		dirs    []string
		want    []SortKey
		wantErr bool
	}{
		{
			name: "по умолчанию created_at desc + id",
			want: []SortKey{
				{"created_at", SortDesc},
				{"id", SortDesc},
			},
		},
		{
			name: "одно направление применяется ко всем ключам",
			keys: []string{"name", "size"},
			dirs: []string{"asc"},
			want: []SortKey{
				{"name", SortAsc},
				{"size", SortAsc},
				{"created_at", SortAsc},
				{"id", SortAsc},
			},
		},
		{
			name: "попарные направления",
			keys: []string{"name", "size"},
			dirs: []string{"asc", "desc"},
			want: []SortKey{
				{"name", SortAsc},
				{"size", SortDesc},
				{"created_at", SortDesc},
				{"id", SortDesc},
			},
		},
		{
			name: "id в списке отключает tie-break",
			keys: []string{"id"},
			dirs: []string{"asc"},
			want: []SortKey{{"id", SortAsc}},
		},
		{
			name: "created_at в списке не дублируется",
			keys: []string{"created_at"},
			dirs: []string{"asc"},
			want: []SortKey{
				{"created_at", SortAsc},
				{"id", SortAsc},
			},
		},
		{
			name:    "неизвестный ключ",
			keys:    []string{"flavor"},
			wantErr: true,
		},
		{
			name:    "повторяющийся ключ",
			keys:    []string{"name", "name"},
			wantErr: true,
		},
		{
			name:    "рассинхронизированные направления",
			keys:    []string{"name", "size", "status"},
			dirs:    []string{"asc", "desc"},
			wantErr: true,
		},
		{
			name:    "недопустимое направление",
			keys:    []string{"name"},
			dirs:    []string{"up"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeImageSort(tt.keys, tt.dirs)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ошибки нет, получено %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeImageSort ошибка: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sort = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}

// TestOrderBySQL проверяет генерацию ORDER BY с подменой NULL.
func TestOrderBySQL(t *testing.T) {
	sort := []SortKey{
		{"name", SortAsc},
		{"size", SortDesc},
		{"created_at", SortDesc},
	}
	got := orderBySQL(sort)
	want := "ORDER BY COALESCE(i.name::text, '') ASC, COALESCE(i.size, 0) DESC, COALESCE(i.created_at, 'epoch'::timestamptz) DESC"
	if got != want {
		t.Errorf("orderBySQL =\n%s\nожидалось\n%s", got, want)
	}
}

// TestMarkerCondSQL проверяет лексикографическую дизъюнкцию условия маркера.
func TestMarkerCondSQL(t *testing.T) {
	name := "cirros"
	marker := &model.Image{
		ID:        "11111111-1111-1111-1111-111111111111",
		Name:      &name,
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
	sort := []SortKey{
		{"name", SortAsc},
		{"id", SortDesc},
	}

	args := &argList{}
	got := markerCondSQL(marker, sort, args)

	want := "((COALESCE(i.name::text, '') > $1) OR " +
		"(COALESCE(i.name::text, '') = $1 AND COALESCE(i.id::text, '') < $2))"
	if got != want {
		t.Errorf("markerCondSQL =\n%s\nожидалось\n%s", got, want)
	}
	if len(args.args) != 2 {
		t.Fatalf("аргументов %d, ожидалось 2", len(args.args))
	}
	if args.args[0] != "cirros" || args.args[1] != marker.ID {
		t.Errorf("args = %v", args.args)
	}
}

// TestMarkerCondSQL_NullSubstitution проверяет подмену NULL-ключей маркера.
func TestMarkerCondSQL_NullSubstitution(t *testing.T) {
	marker := &model.Image{ID: "id-1"} // Name и Size отсутствуют
	sort := []SortKey{
		{"name", SortDesc},
		{"size", SortDesc},
		{"id", SortDesc},
	}

	args := &argList{}
	markerCondSQL(marker, sort, args)

	if args.args[0] != "" {
		t.Errorf("NULL name подменён как %v, ожидалась пустая строка", args.args[0])
	}
	if args.args[1] != int64(0) {
		t.Errorf("NULL size подменён как %v, ожидался 0", args.args[1])
	}
}

// TestArgList проверяет нумерацию placeholder'ов.
func TestArgList(t *testing.T) {
	args := &argList{}
	if ph := args.add("a"); ph != "$1" {
		t.Errorf("placeholder = %s, ожидался $1", ph)
	}
	if ph := args.add("b"); ph != "$2" {
		t.Errorf("placeholder = %s, ожидался $2", ph)
	}
	if len(args.args) != 2 {
		t.Errorf("args = %v", args.args)
	}
}

// TestSortExpr_AllColumns проверяет, что каждая объявленная колонка
// порождает корректное выражение с COALESCE.
func TestSortExpr_AllColumns(t *testing.T) {
	for field, col := range sortableImageColumns {
		expr := sortExpr(col)
		if !strings.HasPrefix(expr, "COALESCE(") {
			t.Errorf("sortExpr(%s) = %s, ожидался COALESCE", field, expr)
		}
		if !strings.Contains(expr, col.column) {
			t.Errorf("sortExpr(%s) = %s не содержит колонку %s", field, expr, col.column)
		}
	}
}
