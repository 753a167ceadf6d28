// Package cart реализует корзину текущей продажи.
package cart

import (
	"fmt"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

// Cart хранит упорядоченные позиции продажи. Не потокобезопасна:
// корзиной владеет одна кассовая сессия.
type Cart struct {
	lines []model.CartLine
}

// New создаёт пустую корзину.
func New() *Cart {
	return &Cart{}
}

// AddLine добавляет товар в корзину. Новая позиция получает количество 1,
// повторное добавление увеличивает количество на qty.
// Проверка остатка здесь предварительная, окончательная выполняется перед записью заказа.
func (c *Cart) AddLine(p model.Product, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: %d", model.ErrInvalidQuantity, qty)
	}
	if p.Stock <= 0 {
		return fmt.Errorf("%w: product %d", model.ErrOutOfStock, p.ID)
	}

	if i := c.indexOf(p.ID); i >= 0 {
		line := &c.lines[i]
		next := line.Quantity + qty
		if next > p.Stock {
			return fmt.Errorf("%w: product %d requested %d, available %d",
				model.ErrInsufficientStock, p.ID, next, p.Stock)
		}
		sub, err := c.fit(i, line.UnitPrice, next)
		if err != nil {
			return err
		}
		line.Quantity = next
		line.Subtotal = sub
		return nil
	}

	sub, err := c.fit(-1, p.Price, 1)
	if err != nil {
		return err
	}
	c.lines = append(c.lines, model.CartLine{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    1,
		UnitPrice:   p.Price,
		Subtotal:    sub,
	})
	return nil
}

// RemoveLine удаляет позицию товара из корзины.
func (c *Cart) RemoveLine(productID int64) error {
	i := c.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("%w: product %d", model.ErrLineNotFound, productID)
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	return nil
}

// Clear очищает корзину.
func (c *Cart) Clear() {
	c.lines = nil
}

// Total возвращает сумму всех позиций по текущему состоянию корзины.
func (c *Cart) Total() model.Money {
	var total model.Money
	for _, l := range c.lines {
		total += l.Subtotal
	}
	return total
}

// Len возвращает число позиций.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines возвращает копию позиций, которую можно передать в другую горутину.
func (c *Cart) Lines() []model.CartLine {
	out := make([]model.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) indexOf(productID int64) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// fit считает сумму позиции и проверяет, что она и итог корзины представимы в Money.
// skip указывает позицию, которую заменит новая сумма, или -1 для новой позиции.
func (c *Cart) fit(skip int, price model.Money, qty int) (model.Money, error) {
	sub, ok := price.Times(qty)
	if !ok {
		return 0, fmt.Errorf("%w: %d x %d overflows line subtotal", model.ErrInvalidQuantity, qty, price)
	}

	total := sub
	for i, l := range c.lines {
		if i == skip {
			continue
		}
		if total, ok = total.Plus(l.Subtotal); !ok {
			return 0, fmt.Errorf("%w: cart total overflows", model.ErrInvalidQuantity)
		}
	}
	return sub, nil
}
