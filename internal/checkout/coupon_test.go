package checkout

import "testing"

func TestValidateCoupon_ReservedCodes(t *testing.T) {
	tests := []struct {
		code        string
		wantType    ErrorType
		wantMessage string
	}{
		{code: "INVALID", wantType: ErrorTypeNotFound, wantMessage: "Coupon code not found"},
		{code: "EXPIRED", wantType: ErrorTypeValidation, wantMessage: "Coupon has expired"},
		{code: "LIMIT", wantType: ErrorTypeValidation, wantMessage: "Coupon usage limit reached"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := validateCoupon(tt.code)
			if err == nil {
				t.Fatalf("expected error for code %q", tt.code)
			}
			if err.ErrorType != tt.wantType {
				t.Fatalf("errorType = %q, want %q", err.ErrorType, tt.wantType)
			}
			if err.Message != tt.wantMessage {
				t.Fatalf("message = %q, want %q", err.Message, tt.wantMessage)
			}
			if err.Operation != "validate_coupon" {
				t.Fatalf("operation = %q, want validate_coupon", err.Operation)
			}
			if err.Context["couponCode"] != tt.code {
				t.Fatalf("context couponCode = %v, want %q", err.Context["couponCode"], tt.code)
			}
		})
	}
}

func TestValidateCoupon_Format(t *testing.T) {
	if err := validateCoupon(""); err != nil {
		t.Fatalf("empty code must be valid, got %v", err)
	}
	if err := validateCoupon("SAVE10"); err != nil {
		t.Fatalf("SAVE10 must be valid, got %v", err)
	}
	if err := validateCoupon("SAVE150"); err != nil {
		t.Fatalf("SAVE150 must pass format validation, got %v", err)
	}

	for _, code := range []string{"save10", "SAVE", "SAVE10EXTRA", "DISCOUNT10", "10SAVE"} {
		err := validateCoupon(code)
		if err == nil {
			t.Fatalf("expected format error for code %q", code)
		}
		if err.ErrorType != ErrorTypeValidation || err.Message != "Invalid coupon format" {
			t.Fatalf("unexpected error for %q: %+v", code, err)
		}
	}
}

func TestCouponDiscount(t *testing.T) {
	tests := []struct {
		name     string
		subtotal int64
		code     string
		want     int64
	}{
		{name: "ten percent", subtotal: 10000, code: "SAVE10", want: 1000},
		{name: "floor rounding", subtotal: 999, code: "SAVE33", want: 329},
		{name: "zero percent", subtotal: 10000, code: "SAVE0", want: 0},
		{name: "full discount", subtotal: 10000, code: "SAVE100", want: 10000},
		{name: "over hundred gives nothing", subtotal: 10000, code: "SAVE150", want: 0},
		{name: "empty code", subtotal: 10000, code: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := couponDiscount(tt.subtotal, tt.code); got != tt.want {
				t.Fatalf("couponDiscount(%d, %q) = %d, want %d", tt.subtotal, tt.code, got, tt.want)
			}
		})
	}
}
