package users

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
)

type stubUserRepo struct {
	users   map[uuid.UUID]*models.User
	listErr error
}

func (s *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateRole(ctx context.Context, id uuid.UUID, role enums.UserRole) error {
	u, ok := s.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.Role = role
	return nil
}

func (s *stubUserRepo) List(ctx context.Context, role *enums.UserRole, params pagination.Params) ([]models.User, string, error) {
	if s.listErr != nil {
		return nil, "", s.listErr
	}
	out := []models.User{}
	for _, u := range s.users {
		if role == nil || u.Role == *role {
			out = append(out, *u)
		}
	}
	return out, "", nil
}

func TestChangeRole(t *testing.T) {
	admin := &models.User{ID: uuid.New(), Role: enums.UserRoleAdmin}
	customer := &models.User{ID: uuid.New(), Role: enums.UserRoleCustomer}
	repo := &stubUserRepo{users: map[uuid.UUID]*models.User{admin.ID: admin, customer.ID: customer}}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	dto, err := svc.ChangeRole(ctx, admin.ID, customer.ID, enums.UserRoleSupplier)
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if dto.Role != enums.UserRoleSupplier {
		t.Fatalf("expected supplier, got %s", dto.Role)
	}

	if _, err := svc.ChangeRole(ctx, admin.ID, customer.ID, "owner"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.ChangeRole(ctx, admin.ID, admin.ID, enums.UserRoleCustomer); !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for self change, got %v", err)
	}
	if _, err := svc.ChangeRole(ctx, admin.ID, uuid.New(), enums.UserRoleCustomer); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListAndGet(t *testing.T) {
	u := &models.User{ID: uuid.New(), Email: "x@example.com", Role: enums.UserRoleCustomer, PasswordHash: "secret"}
	repo := &stubUserRepo{users: map[uuid.UUID]*models.User{u.ID: u}}
	svc, _ := NewService(repo)

	got, err := svc.Get(context.Background(), u.ID)
	if err != nil || got.Email != u.Email {
		t.Fatalf("unexpected get result %+v %v", got, err)
	}

	bad := enums.UserRole("root")
	if _, err := svc.List(context.Background(), &bad, pagination.Params{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	list, err := svc.List(context.Background(), nil, pagination.Params{})
	if err != nil || len(list.Users) != 1 {
		t.Fatalf("unexpected list %+v %v", list, err)
	}

	repo.listErr = errors.New("db down")
	if _, err := svc.List(context.Background(), nil, pagination.Params{}); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatal("expected error for nil repo")
	}
}
