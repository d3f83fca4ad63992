package checkout

import (
	"regexp"
	"strconv"
)

const opValidateCoupon = "validate_coupon"

// Зарезервированные коды купонов, всегда отклоняемые с фиксированной ошибкой.
const (
	couponCodeNotFound = "INVALID"
	couponCodeExpired  = "EXPIRED"
	couponCodeLimit    = "LIMIT"
)

var couponPattern = regexp.MustCompile(`^SAVE(\d+)$`)

// validateCoupon проверяет код купона. Пустой код допустим — покупка без скидки.
func validateCoupon(code string) *Error {
	if code == "" {
		return nil
	}

	switch code {
	case couponCodeNotFound:
		return newNotFoundError(opValidateCoupon, "Coupon code not found", map[string]any{
			"couponCode": code,
		})
	case couponCodeExpired:
		return newValidationError(opValidateCoupon, "Coupon has expired", map[string]any{
			"couponCode":     code,
			"expirationDate": "2024-01-01",
		})
	case couponCodeLimit:
		return newValidationError(opValidateCoupon, "Coupon usage limit reached", map[string]any{
			"couponCode": code,
			"limit":      100,
			"used":       100,
		})
	}

	if !couponPattern.MatchString(code) {
		return newValidationError(opValidateCoupon, "Invalid coupon format", map[string]any{
			"couponCode": code,
		})
	}

	return nil
}

// couponDiscount возвращает размер скидки в сантимах для прошедшего валидацию
// кода. Процент вне диапазона 0..100 скидки не даёт.
func couponDiscount(subtotal int64, code string) int64 {
	m := couponPattern.FindStringSubmatch(code)
	if m == nil {
		return 0
	}

	percentage, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || percentage > 100 {
		return 0
	}

	return subtotal * percentage / 100
}
