// Package service реализует вход сотрудников и отчёты по зафиксированным продажам.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

const (
	defaultOrdersLimit = 50
	maxOrdersLimit     = 500
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateEmployee(ctx context.Context, login, fullName string, passwordHash []byte) (int64, error)
	GetEmployeeByLogin(ctx context.Context, login string) (*model.Employee, error)
	ListOrders(ctx context.Context, limit int) ([]model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	SalesSummary(ctx context.Context, from, to time.Time) (model.SalesSummary, error)
}

// Service содержит логику входа сотрудников и чтения истории продаж.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterEmployee регистрирует нового сотрудника.
func (s *Service) RegisterEmployee(ctx context.Context, login, fullName, password string) (int64, error) {
	if fullName == "" {
		fullName = login
	}
	return s.repo.CreateEmployee(ctx, login, fullName, hashPassword(login, password))
}

// AuthenticateEmployee проверяет логин и пароль и возвращает идентификатор сотрудника.
func (s *Service) AuthenticateEmployee(ctx context.Context, login, password string) (int64, error) {
	e, err := s.repo.GetEmployeeByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, model.ErrEmployeeNotFound) {
			return 0, model.ErrInvalidCredentials
		}
		return 0, err
	}

	if subtle.ConstantTimeCompare(hashPassword(login, password), e.PasswordHash) != 1 {
		return 0, model.ErrInvalidCredentials
	}

	return e.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// ListOrders возвращает последние заказы, новые первыми.
func (s *Service) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	switch {
	case limit <= 0:
		limit = defaultOrdersLimit
	case limit > maxOrdersLimit:
		limit = maxOrdersLimit
	}
	return s.repo.ListOrders(ctx, limit)
}

// GetOrder возвращает заказ со строками.
func (s *Service) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// TodaySummary возвращает число заказов и выручку с начала текущих суток по часам кассы.
func (s *Service) TodaySummary(ctx context.Context) (model.SalesSummary, error) {
	now := s.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.repo.SalesSummary(ctx, from, from.AddDate(0, 0, 1))
}
