package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

type stubRepo struct {
	createID   int64
	createErr  error
	created    string
	createdFor string

	employee    *model.Employee
	employeeErr error

	orders     []model.Order
	ordersErr  error
	ordersLim  int
	order      *model.Order
	orderErr   error
	summary    model.SalesSummary
	from, to   time.Time
	summaryErr error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateEmployee(ctx context.Context, login, fullName string, passwordHash []byte) (int64, error) {
	s.created = login
	s.createdFor = fullName
	return s.createID, s.createErr
}

func (s *stubRepo) GetEmployeeByLogin(ctx context.Context, login string) (*model.Employee, error) {
	return s.employee, s.employeeErr
}

func (s *stubRepo) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	s.ordersLim = limit
	return s.orders, s.ordersErr
}

func (s *stubRepo) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubRepo) SalesSummary(ctx context.Context, from, to time.Time) (model.SalesSummary, error) {
	s.from, s.to = from, to
	return s.summary, s.summaryErr
}

func TestRegisterEmployee_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createErr: model.ErrEmployeeExists}
	svc := NewService(repo)

	_, err := svc.RegisterEmployee(context.Background(), "login", "", "pass")
	if !errors.Is(err, model.ErrEmployeeExists) {
		t.Fatalf("expected ErrEmployeeExists, got %v", err)
	}
	if repo.createdFor != "login" {
		t.Fatalf("full name must default to login, got %q", repo.createdFor)
	}
}

func TestAuthenticateEmployee(t *testing.T) {
	hashed := hashPassword("anna", "correct")
	tests := []struct {
		name     string
		repo     *stubRepo
		password string
		wantID   int64
		wantErr  error
	}{
		{
			name:     "valid",
			repo:     &stubRepo{employee: &model.Employee{ID: 5, Login: "anna", PasswordHash: hashed}},
			password: "correct",
			wantID:   5,
		},
		{
			name:     "wrong password",
			repo:     &stubRepo{employee: &model.Employee{ID: 5, Login: "anna", PasswordHash: hashed}},
			password: "wrong",
			wantErr:  model.ErrInvalidCredentials,
		},
		{
			name:     "unknown login",
			repo:     &stubRepo{employeeErr: model.ErrEmployeeNotFound},
			password: "correct",
			wantErr:  model.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewService(tt.repo).AuthenticateEmployee(context.Background(), "anna", tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if id != tt.wantID {
				t.Fatalf("id = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestListOrders_ClampsLimit(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	for limit, want := range map[int]int{0: defaultOrdersLimit, -3: defaultOrdersLimit, 10: 10, 10000: maxOrdersLimit} {
		if _, err := svc.ListOrders(context.Background(), limit); err != nil {
			t.Fatalf("ListOrders error: %v", err)
		}
		if repo.ordersLim != want {
			t.Fatalf("limit %d passed as %d, want %d", limit, repo.ordersLim, want)
		}
	}
}

func TestTodaySummary_StartsAtLocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	repo := &stubRepo{summary: model.SalesSummary{Orders: 2, Total: 70000}}
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 14, 30, 0, 0, loc) }

	got, err := svc.TodaySummary(context.Background())
	if err != nil {
		t.Fatalf("TodaySummary error: %v", err)
	}
	if got != repo.summary {
		t.Fatalf("summary = %+v, want %+v", got, repo.summary)
	}

	wantFrom := time.Date(2024, 3, 15, 0, 0, 0, 0, loc)
	if !repo.from.Equal(wantFrom) {
		t.Fatalf("from = %v, want %v", repo.from, wantFrom)
	}
	if !repo.to.Equal(wantFrom.Add(24 * time.Hour)) {
		t.Fatalf("to = %v, want next midnight", repo.to)
	}
}

func TestGetOrder_PassThrough(t *testing.T) {
	repo := &stubRepo{orderErr: model.ErrOrderNotFound}
	svc := NewService(repo)

	_, err := svc.GetOrder(context.Background(), 42)
	if !errors.Is(err, model.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
