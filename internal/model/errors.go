package model

import (
	"context"
	"errors"
)

// Классифицированные ошибки оформления продажи.
var (
	// ErrEmptyCart возвращается при попытке оформить пустую корзину.
	ErrEmptyCart = errors.New("empty cart")
	// ErrOutOfStock возвращается, если товара нет на складе.
	ErrOutOfStock = errors.New("out of stock")
	// ErrInsufficientStock возвращается, если запрошено больше, чем есть на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidPayment возвращается при некорректной или недостаточной оплате.
	ErrInvalidPayment = errors.New("invalid payment")
	// ErrConcurrentStockConflict возвращается, если остаток изменился между проверкой и записью.
	ErrConcurrentStockConflict = errors.New("concurrent stock conflict")
	// ErrLedgerUnavailable возвращается при сбое хранилища.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrCheckoutInProgress возвращается, пока по корзине выполняется другая попытка оформления.
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	// ErrCheckoutCancelled возвращается, если попытка отменена до записи.
	ErrCheckoutCancelled = errors.New("checkout cancelled")

	ErrLineNotFound     = errors.New("line not found")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrProductNotFound  = errors.New("product not found")
	ErrNotLoggedIn      = errors.New("not logged in")
	ErrOrderNotFound    = errors.New("order not found")
	ErrEmployeeExists   = errors.New("employee already exists")
	ErrEmployeeNotFound = errors.New("employee not found")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidProduct     = errors.New("invalid product")
)

var kinds = []error{
	ErrEmptyCart,
	ErrOutOfStock,
	ErrInsufficientStock,
	ErrInvalidPayment,
	ErrConcurrentStockConflict,
	ErrLedgerUnavailable,
	ErrCheckoutInProgress,
	ErrCheckoutCancelled,
	ErrLineNotFound,
	ErrInvalidQuantity,
	ErrProductNotFound,
	ErrNotLoggedIn,
	ErrOrderNotFound,
	ErrEmployeeExists,
	ErrEmployeeNotFound,
	ErrInvalidCredentials,
	ErrInvalidProduct,
}

// Classify сводит произвольную ошибку к одному из известных видов.
// Неизвестные ошибки и истечение срока считаются недоступностью хранилища.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	if errors.Is(err, context.Canceled) {
		return ErrCheckoutCancelled
	}
	return ErrLedgerUnavailable
}
