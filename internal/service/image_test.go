package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/laoyigrace/imagestore/internal/domain/model"
	"github.com/laoyigrace/imagestore/internal/repository"
)

func testImage(owner string) *model.Image {
	o := owner
	name := "cirros"
	return &model.Image{
		ID:     uuid.NewString(),
		Name:   &name,
		Status: model.StatusActive,
		Owner:  &o,
	}
}

// TestImageService_Get_Visibility проверяет, что невидимый образ
// неотличим от несуществующего.
func TestImageService_Get_Visibility(t *testing.T) {
	img := testImage("tenant-a")
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			if id == img.ID {
				return img, nil
			}
			return nil, repository.ErrNotFound
		},
	}
	svc := NewImageService(repo, slog.Default())

	// Владелец видит образ
	got, err := svc.Get(context.Background(), model.Actor{Tenant: "tenant-a"}, img.ID)
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if got.ID != img.ID {
		t.Errorf("ID = %s, ожидался %s", got.ID, img.ID)
	}

	// Посторонний получает ErrNotFound, не ErrForbidden
	_, err = svc.Get(context.Background(), model.Actor{Tenant: "tenant-z"}, img.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ошибка = %v, ожидался ErrNotFound", err)
	}
}

// TestImageService_Create_Defaults проверяет значения по умолчанию при создании.
func TestImageService_Create_Defaults(t *testing.T) {
	var created *model.Image
	repo := &mockImageRepo{
		createFn: func(_ context.Context, img *model.Image) error {
			created = img
			return nil
		},
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return created, nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	img, err := svc.Create(context.Background(), model.Actor{Tenant: "tenant-a"}, &model.Image{})
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}
	if img.Status != model.StatusQueued {
		t.Errorf("Status = %s, ожидался queued", img.Status)
	}
	if img.Owner == nil || *img.Owner != "tenant-a" {
		t.Errorf("Owner = %v, ожидался tenant-a", img.Owner)
	}
	if _, err := uuid.Parse(img.ID); err != nil {
		t.Errorf("ID %q не является UUID", img.ID)
	}
	if img.CreatedAt.IsZero() || img.UpdatedAt.IsZero() {
		t.Error("временные метки не выставлены")
	}
}

// TestImageService_Create_OwnerOverride проверяет, что задать чужого
// владельца может только администратор.
func TestImageService_Create_OwnerOverride(t *testing.T) {
	var created *model.Image
	repo := &mockImageRepo{
		createFn: func(_ context.Context, img *model.Image) error {
			created = img
			return nil
		},
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return created, nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	other := "tenant-b"
	// Обычный пользователь: владелец подменяется на его tenant
	img, err := svc.Create(context.Background(), model.Actor{Tenant: "tenant-a"},
		&model.Image{Owner: &other})
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}
	if *img.Owner != "tenant-a" {
		t.Errorf("Owner = %s, ожидался tenant-a", *img.Owner)
	}

	// Администратор: заданный владелец сохраняется
	img, err = svc.Create(context.Background(), model.Actor{Tenant: "admin", IsAdmin: true},
		&model.Image{Owner: &other})
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}
	if *img.Owner != "tenant-b" {
		t.Errorf("Owner = %s, ожидался tenant-b", *img.Owner)
	}
}

// TestImageService_Create_Validation проверяет отклонение некорректных записей.
func TestImageService_Create_Validation(t *testing.T) {
	svc := NewImageService(&mockImageRepo{}, slog.Default())
	actor := model.Actor{Tenant: "tenant-a"}

	bad4byte := "emoji-\U0001F600"
	tests := []struct {
		name string
		img  model.Image
	}{
		{"недопустимый статус", model.Image{Status: "exploded"}},
		{"отрицательный min_disk", model.Image{MinDisk: -1}},
		{"отрицательный min_ram", model.Image{MinRAM: -1}},
		{"4-байтовые символы в имени", model.Image{Name: &bad4byte}},
		{"некорректный UUID", model.Image{ID: "not-a-uuid"}},
		{"пустой тег", model.Image{Tags: []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), actor, &tt.img)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ошибка = %v, ожидался ErrValidation", err)
			}
		})
	}
}

// TestImageService_Save_StatusTransition проверяет контроль переходов статуса.
func TestImageService_Save_StatusTransition(t *testing.T) {
	stored := testImage("tenant-a")
	stored.Status = model.StatusSaving
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return stored, nil
		},
	}
	svc := NewImageService(repo, slog.Default())
	actor := model.Actor{Tenant: "tenant-a"}

	// saving → queued — недопустимый переход
	_, err := svc.Save(context.Background(), actor,
		&model.Image{ID: stored.ID, Status: model.StatusQueued}, SaveOptions{})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("ошибка = %v, ожидался ErrConflict", err)
	}

	// saving → active — допустимый
	_, err = svc.Save(context.Background(), actor,
		&model.Image{ID: stored.ID, Status: model.StatusActive}, SaveOptions{})
	if err != nil {
		t.Errorf("Save ошибка: %v", err)
	}
}

// TestImageService_Save_ReactivationAdminOnly проверяет, что реактивация
// deactivated → active доступна только администратору.
func TestImageService_Save_ReactivationAdminOnly(t *testing.T) {
	stored := testImage("tenant-a")
	stored.Status = model.StatusDeactivated
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return stored, nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	_, err := svc.Save(context.Background(), model.Actor{Tenant: "tenant-a"},
		&model.Image{ID: stored.ID, Status: model.StatusActive}, SaveOptions{})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("ошибка = %v, ожидался ErrForbidden", err)
	}

	_, err = svc.Save(context.Background(), model.Actor{Tenant: "admin", IsAdmin: true},
		&model.Image{ID: stored.ID, Status: model.StatusActive}, SaveOptions{})
	if err != nil {
		t.Errorf("Save ошибка: %v", err)
	}
}

// TestImageService_Save_MemberCannotMutate проверяет, что членство
// не даёт права записи.
func TestImageService_Save_MemberCannotMutate(t *testing.T) {
	stored := testImage("tenant-a")
	stored.Members = []*model.ImageMember{
		{Member: "tenant-b", Status: model.MemberStatusAccepted},
	}
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return stored, nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	_, err := svc.Save(context.Background(), model.Actor{Tenant: "tenant-b"},
		&model.Image{ID: stored.ID, Protected: true}, SaveOptions{})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("ошибка = %v, ожидался ErrForbidden", err)
	}
}

// TestImageService_Save_LocationResurrection проверяет отказ при попытке
// воскресить удалённую локацию через её идентификатор.
func TestImageService_Save_LocationResurrection(t *testing.T) {
	stored := testImage("tenant-a")
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return stored, nil
		},
		locationHistoryIDsFn: func(_ context.Context, imageID string) (map[int64]bool, error) {
			// Локация 7 существует только в истории (удалена)
			return map[int64]bool{7: true}, nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	_, err := svc.Save(context.Background(), model.Actor{Tenant: "tenant-a"},
		&model.Image{ID: stored.ID, Locations: []*model.ImageLocation{
			{ID: 7, Address: "file:///resurrected"},
		}}, SaveOptions{})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("ошибка = %v, ожидался ErrConflict", err)
	}
}

// TestImageService_Delete_Protected проверяет защиту от удаления.
func TestImageService_Delete_Protected(t *testing.T) {
	stored := testImage("tenant-a")
	stored.Protected = true
	deleted := false
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return stored, nil
		},
		softDeleteFn: func(_ context.Context, id string) error {
			deleted = true
			return nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	err := svc.Delete(context.Background(), model.Actor{Tenant: "tenant-a"}, stored.ID)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("ошибка = %v, ожидался ErrForbidden", err)
	}
	if deleted {
		t.Error("SoftDelete вызван для защищённого образа")
	}
}

// TestImageService_List_DeletedFilterAdminOnly проверяет административность
// фильтра deleted.
func TestImageService_List_DeletedFilterAdminOnly(t *testing.T) {
	svc := NewImageService(&mockImageRepo{}, slog.Default())

	_, err := svc.List(context.Background(), model.Actor{Tenant: "tenant-a"},
		ListOptions{Filters: map[string]string{"deleted": "true"}})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("ошибка = %v, ожидался ErrForbidden", err)
	}

	// changes-since снимает ограничение: удалённые строки нужны
	// для инкрементальной синхронизации
	_, err = svc.List(context.Background(), model.Actor{Tenant: "tenant-a"},
		ListOptions{Filters: map[string]string{
			"deleted":       "true",
			"changes-since": "2026-01-01T00:00:00Z",
		}})
	if err != nil {
		t.Errorf("List ошибка: %v", err)
	}

	_, err = svc.List(context.Background(), model.Actor{IsAdmin: true},
		ListOptions{Filters: map[string]string{"deleted": "true"}})
	if err != nil {
		t.Errorf("List ошибка: %v", err)
	}
}

// TestImageService_List_InvisibleMarker проверяет, что невидимый маркер
// отклоняется как ошибка валидации.
func TestImageService_List_InvisibleMarker(t *testing.T) {
	foreign := testImage("tenant-b")
	foreign.IsPublic = false
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return foreign, nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	_, err := svc.List(context.Background(), model.Actor{Tenant: "tenant-a"},
		ListOptions{Marker: foreign.ID})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ошибка = %v, ожидался ErrValidation", err)
	}
}

// TestImageService_List_MarkerMemberStatus проверяет, что видимость маркера
// оценивается статусом членства запроса: хвост страницы pending-листинга
// принимается маркером следующей страницы.
func TestImageService_List_MarkerMemberStatus(t *testing.T) {
	shared := testImage("tenant-b")
	shared.Members = []*model.ImageMember{
		{ImageID: shared.ID, Member: "tenant-a", Status: model.MemberStatusPending},
	}
	var captured repository.ImageListQuery
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return shared, nil
		},
		listFn: func(_ context.Context, q repository.ImageListQuery) ([]*model.Image, error) {
			captured = q
			return nil, nil
		},
	}
	svc := NewImageService(repo, slog.Default())
	actor := model.Actor{Tenant: "tenant-a"}

	// Со статусом по умолчанию (accepted) pending-маркер невидим
	_, err := svc.List(context.Background(), actor, ListOptions{Marker: shared.ID})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ошибка = %v, ожидался ErrValidation", err)
	}

	// Запрос со статусом pending принимает тот же маркер
	_, err = svc.List(context.Background(), actor,
		ListOptions{Marker: shared.ID, MemberStatus: model.MemberStatusPending})
	if err != nil {
		t.Fatalf("List ошибка: %v", err)
	}
	if captured.Marker == nil || captured.Marker.ID != shared.ID {
		t.Errorf("маркер не передан репозиторию: %+v", captured.Marker)
	}
}

// TestImageService_Save_AbsoluteBooleans проверяет, что IsPublic и Protected
// переносятся из патча как есть: в отличие от указательных полей, пропуск
// булевого поля сбрасывает его в false.
func TestImageService_Save_AbsoluteBooleans(t *testing.T) {
	stored := testImage("tenant-a")
	stored.IsPublic = true
	stored.Protected = true
	var captured repository.ImageUpdate
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return stored, nil
		},
		updateFn: func(_ context.Context, u repository.ImageUpdate) error {
			captured = u
			return nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	_, err := svc.Save(context.Background(), model.Actor{Tenant: "tenant-a"},
		&model.Image{ID: stored.ID, Tags: []string{"linux"}}, SaveOptions{})
	if err != nil {
		t.Fatalf("Save ошибка: %v", err)
	}
	if captured.Image.IsPublic || captured.Image.Protected {
		t.Errorf("is_public = %v, protected = %v, ожидался сброс в false",
			captured.Image.IsPublic, captured.Image.Protected)
	}
}

// TestImageService_Save_TagReconciliation проверяет, что сверка тегов
// передаёт репозиторию только фактические изменения.
func TestImageService_Save_TagReconciliation(t *testing.T) {
	stored := testImage("tenant-a")
	stored.Tags = []string{"linux", "x86"}
	var captured repository.ImageUpdate
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return stored, nil
		},
		updateFn: func(_ context.Context, u repository.ImageUpdate) error {
			captured = u
			return nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	_, err := svc.Save(context.Background(), model.Actor{Tenant: "tenant-a"},
		&model.Image{ID: stored.ID, Tags: []string{"linux", "arm"}}, SaveOptions{})
	if err != nil {
		t.Fatalf("Save ошибка: %v", err)
	}
	if len(captured.Tags.Create) != 1 || captured.Tags.Create[0] != "arm" {
		t.Errorf("Tags.Create = %v, ожидался [arm]", captured.Tags.Create)
	}
	if len(captured.Tags.SoftDeleteValues) != 1 || captured.Tags.SoftDeleteValues[0] != "x86" {
		t.Errorf("Tags.SoftDeleteValues = %v, ожидался [x86]", captured.Tags.SoftDeleteValues)
	}
}

// TestImageService_Locations_DeletedAdminOnly проверяет, что удалённые
// локации видит только администратор.
func TestImageService_Locations_DeletedAdminOnly(t *testing.T) {
	stored := testImage("tenant-a")
	repo := &mockImageRepo{
		getByIDFn: func(_ context.Context, id string, _ bool) (*model.Image, error) {
			return stored, nil
		},
	}
	svc := NewImageService(repo, slog.Default())

	_, err := svc.Locations(context.Background(), model.Actor{Tenant: "tenant-a"}, stored.ID, true)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("ошибка = %v, ожидался ErrForbidden", err)
	}
}
