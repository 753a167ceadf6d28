// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

// ParseAmount переводит введённую кассиром сумму в минимальные единицы валюты.
// scale задаёт число дробных знаков минимальной единицы (0 для донга, 2 для рубля).
// Дробная часть отделяется только точкой. Разделитель групп разрядов "," или пробел
// допускается лишь в целой части и только между группами по три цифры: "100,000", "1 000 000".
func ParseAmount(s string, scale int32) (model.Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", model.ErrInvalidPayment)
	}

	plain, ok := ungroup(s)
	if !ok {
		return 0, fmt.Errorf("%w: %q has misplaced digit separators", model.ErrInvalidPayment, s)
	}

	d, err := decimal.NewFromString(plain)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", model.ErrInvalidPayment, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount", model.ErrInvalidPayment)
	}

	minor := d.Shift(scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d fractional digits", model.ErrInvalidPayment, s, scale)
	}
	if !minor.LessThanOrEqual(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: amount too large", model.ErrInvalidPayment)
	}

	return model.Money(minor.IntPart()), nil
}

// ungroup убирает разделители групп разрядов из целой части суммы.
func ungroup(s string) (string, bool) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if strings.ContainsAny(frac, ", _") || strings.Contains(whole, "_") {
		return "", false
	}

	var sep string
	switch {
	case strings.Contains(whole, ",") && strings.Contains(whole, " "):
		return "", false
	case strings.Contains(whole, ","):
		sep = ","
	case strings.Contains(whole, " "):
		sep = " "
	}

	if sep != "" {
		groups := strings.Split(whole, sep)
		head := strings.TrimLeft(groups[0], "+-")
		if len(head) < 1 || len(head) > 3 {
			return "", false
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return "", false
			}
		}
		whole = strings.Join(groups, "")
	}

	if hasFrac {
		return whole + "." + frac, true
	}
	return whole, true
}

// ParsePaymentMethod проверяет и нормализует способ оплаты.
func ParsePaymentMethod(s string) (model.PaymentMethod, error) {
	m := model.PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown payment method %q", model.ErrInvalidPayment, s)
	}
	return m, nil
}
