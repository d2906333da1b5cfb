package model

import "testing"

// TestIsValidStatus проверяет множество допустимых статусов.
func TestIsValidStatus(t *testing.T) {
	valid := []ImageStatus{
		StatusQueued, StatusSaving, StatusActive, StatusKilled,
		StatusPendingDelete, StatusDeleted, StatusDeactivated,
	}
	for _, s := range valid {
		if !IsValidStatus(s) {
			t.Errorf("IsValidStatus(%q): ожидалось true", s)
		}
	}
	for _, s := range []ImageStatus{"", "unknown", "ACTIVE", "removed"} {
		if IsValidStatus(s) {
			t.Errorf("IsValidStatus(%q): ожидалось false", s)
		}
	}
}

// TestCanTransition проверяет матрицу переходов жизненного цикла.
func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ImageStatus
		want     bool
	}{
		{StatusQueued, StatusSaving, true},
		{StatusQueued, StatusActive, true},
		{StatusQueued, StatusKilled, true},
		{StatusQueued, StatusDeactivated, false},
		{StatusSaving, StatusActive, true},
		{StatusSaving, StatusQueued, false},
		{StatusActive, StatusDeactivated, true},
		{StatusActive, StatusPendingDelete, true},
		{StatusActive, StatusSaving, false},
		{StatusDeactivated, StatusActive, true}, // реактивация
		{StatusDeactivated, StatusKilled, false},
		{StatusKilled, StatusDeleted, true},
		{StatusPendingDelete, StatusDeleted, true},
		{StatusPendingDelete, StatusActive, false},
		{StatusDeleted, StatusActive, false},
		{StatusDeleted, StatusQueued, false},
		// переход в тот же статус всегда допустим
		{StatusActive, StatusActive, true},
		{StatusDeleted, StatusDeleted, true},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, ожидалось %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// TestCheckTransition проверяет текст ошибки недопустимого перехода.
func TestCheckTransition(t *testing.T) {
	if err := CheckTransition(StatusActive, StatusDeactivated); err != nil {
		t.Errorf("CheckTransition(active, deactivated): неожиданная ошибка: %v", err)
	}
	if err := CheckTransition(StatusDeleted, StatusActive); err == nil {
		t.Error("CheckTransition(deleted, active): ожидалась ошибка")
	}
}
