// Package model содержит доменные сущности кассового модуля.
package model

import (
	"math"
	"time"
)

// Money хранит сумму в минимальных единицах валюты.
type Money int64

// Times возвращает m*qty. ok равен false для отрицательных аргументов и при переполнении.
func (m Money) Times(qty int) (Money, bool) {
	if m < 0 || qty < 0 {
		return 0, false
	}
	if qty != 0 && m > math.MaxInt64/Money(qty) {
		return 0, false
	}
	return m * Money(qty), true
}

// Plus возвращает m+o. ok равен false для отрицательных аргументов и при переполнении.
func (m Money) Plus(o Money) (Money, bool) {
	if m < 0 || o < 0 || m > math.MaxInt64-o {
		return 0, false
	}
	return m + o, true
}

// Employee представляет сотрудника, работающего за кассой.
type Employee struct {
	ID           int64
	Login        string
	FullName     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Product описывает товар каталога и его текущий остаток.
type Product struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price Money  `json:"price"`
	Stock int    `json:"stock"`
}

// CartLine описывает позицию корзины со снимком имени и цены на момент добавления.
type CartLine struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Money  `json:"unit_price"`
	Subtotal    Money  `json:"subtotal"`
}

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCard     PaymentMethod = "card"
)

// Valid сообщает, известен ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentCard:
		return true
	}
	return false
}

// Payment содержит результат сверки оплаты: внесённую сумму и сдачу.
type Payment struct {
	Method   PaymentMethod
	Tendered Money
	Change   Money
}

// OrderDraft содержит всё, что нужно журналу для атомарной записи заказа.
type OrderDraft struct {
	EmployeeID int64
	Lines      []CartLine
	Total      Money
	Payment    Payment
}

// Order описывает зафиксированный заказ.
type Order struct {
	ID            int64         `json:"id"`
	EmployeeID    int64         `json:"employee_id"`
	EmployeeName  string        `json:"employee_name,omitempty"`
	TotalAmount   Money         `json:"total_amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Tendered      Money         `json:"tendered"`
	Change        Money         `json:"change"`
	CreatedAt     time.Time     `json:"created_at"`
	Lines         []OrderLine   `json:"lines,omitempty"`
}

// OrderLine описывает строку зафиксированного заказа.
type OrderLine struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Money  `json:"unit_price"`
	Subtotal    Money  `json:"subtotal"`
}

// SalesSummary содержит итоги продаж за период.
type SalesSummary struct {
	Orders int   `json:"orders"`
	Total  Money `json:"total"`
}
