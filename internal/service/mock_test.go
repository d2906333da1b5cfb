package service

import (
	"context"

	"github.com/laoyigrace/imagestore/internal/domain/model"
	"github.com/laoyigrace/imagestore/internal/repository"
)

// --- Mock repositories ---

// mockImageRepo — мок ImageRepository для unit-тестов.
type mockImageRepo struct {
	getByIDFn            func(ctx context.Context, id string, includeDeleted bool) (*model.Image, error)
	listFn               func(ctx context.Context, q repository.ImageListQuery) ([]*model.Image, error)
	createFn             func(ctx context.Context, img *model.Image) error
	updateFn             func(ctx context.Context, u repository.ImageUpdate) error
	softDeleteFn         func(ctx context.Context, id string) error
	listLocationsFn      func(ctx context.Context, imageID string, includeDeleted bool) ([]*model.ImageLocation, error)
	locationHistoryIDsFn func(ctx context.Context, imageID string) (map[int64]bool, error)
	storageUsageFn       func(ctx context.Context, owner string, excludeImageID string) (int64, error)
}

func (m *mockImageRepo) GetByID(ctx context.Context, id string, includeDeleted bool) (*model.Image, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id, includeDeleted)
	}
	return nil, repository.ErrNotFound
}

func (m *mockImageRepo) List(ctx context.Context, q repository.ImageListQuery) ([]*model.Image, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return nil, nil
}

func (m *mockImageRepo) Create(ctx context.Context, img *model.Image) error {
	if m.createFn != nil {
		return m.createFn(ctx, img)
	}
	return nil
}

func (m *mockImageRepo) Update(ctx context.Context, u repository.ImageUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, u)
	}
	return nil
}

func (m *mockImageRepo) SoftDelete(ctx context.Context, id string) error {
	if m.softDeleteFn != nil {
		return m.softDeleteFn(ctx, id)
	}
	return nil
}

func (m *mockImageRepo) ListLocations(ctx context.Context, imageID string, includeDeleted bool) ([]*model.ImageLocation, error) {
	if m.listLocationsFn != nil {
		return m.listLocationsFn(ctx, imageID, includeDeleted)
	}
	return nil, nil
}

func (m *mockImageRepo) LocationHistoryIDs(ctx context.Context, imageID string) (map[int64]bool, error) {
	if m.locationHistoryIDsFn != nil {
		return m.locationHistoryIDsFn(ctx, imageID)
	}
	return map[int64]bool{}, nil
}

func (m *mockImageRepo) StorageUsage(ctx context.Context, owner string, excludeImageID string) (int64, error) {
	if m.storageUsageFn != nil {
		return m.storageUsageFn(ctx, owner, excludeImageID)
	}
	return 0, nil
}

// mockMemberRepo — мок MemberRepository для unit-тестов.
type mockMemberRepo struct {
	getFn                  func(ctx context.Context, id string) (*model.ImageMember, error)
	findFn                 func(ctx context.Context, imageID, member string) (*model.ImageMember, error)
	findIncludingDeletedFn func(ctx context.Context, imageID, member string) (*model.ImageMember, error)
	listByImageFn          func(ctx context.Context, imageID, status string) ([]*model.ImageMember, error)
	listByMemberFn         func(ctx context.Context, member, status string) ([]*model.ImageMember, error)
	insertFn               func(ctx context.Context, m *model.ImageMember) error
	updateFn               func(ctx context.Context, m *model.ImageMember) error
	softDeleteFn           func(ctx context.Context, id string) error
	countLiveFn            func(ctx context.Context, imageID string) (int, error)
}

func (m *mockMemberRepo) Get(ctx context.Context, id string) (*model.ImageMember, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockMemberRepo) Find(ctx context.Context, imageID, member string) (*model.ImageMember, error) {
	if m.findFn != nil {
		return m.findFn(ctx, imageID, member)
	}
	return nil, repository.ErrNotFound
}

func (m *mockMemberRepo) FindIncludingDeleted(ctx context.Context, imageID, member string) (*model.ImageMember, error) {
	if m.findIncludingDeletedFn != nil {
		return m.findIncludingDeletedFn(ctx, imageID, member)
	}
	return nil, repository.ErrNotFound
}

func (m *mockMemberRepo) ListByImage(ctx context.Context, imageID, status string) ([]*model.ImageMember, error) {
	if m.listByImageFn != nil {
		return m.listByImageFn(ctx, imageID, status)
	}
	return nil, nil
}

func (m *mockMemberRepo) ListByMember(ctx context.Context, member, status string) ([]*model.ImageMember, error) {
	if m.listByMemberFn != nil {
		return m.listByMemberFn(ctx, member, status)
	}
	return nil, nil
}

func (m *mockMemberRepo) Insert(ctx context.Context, mm *model.ImageMember) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, mm)
	}
	return nil
}

func (m *mockMemberRepo) Update(ctx context.Context, mm *model.ImageMember) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, mm)
	}
	return nil
}

func (m *mockMemberRepo) SoftDelete(ctx context.Context, id string) error {
	if m.softDeleteFn != nil {
		return m.softDeleteFn(ctx, id)
	}
	return nil
}

func (m *mockMemberRepo) CountLive(ctx context.Context, imageID string) (int, error) {
	if m.countLiveFn != nil {
		return m.countLiveFn(ctx, imageID)
	}
	return 0, nil
}
