package checkout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anikulin/checkout-system/internal/model"
	"github.com/anikulin/checkout-system/internal/repository"
)

type stubCatalog struct{}

func (s *stubCatalog) GetCourseBySlug(_ context.Context, slug string) (*model.Course, error) {
	switch slug {
	case "intro-to-programming":
		return &model.Course{ID: 1, Slug: slug, Title: "Introduction to Programming", BasePrice: 10000, CoachingPrice: 3000}, nil
	case "advanced-javascript":
		return &model.Course{ID: 2, Slug: slug, Title: "Advanced JavaScript", BasePrice: 15000, CoachingPrice: 5000}, nil
	}
	return nil, repository.ErrCourseNotFound
}

func (s *stubCatalog) GetPackageByID(_ context.Context, id int64) (*model.Package, error) {
	if id == 1 {
		return &model.Package{ID: 1, Title: "Web Development Bundle", CourseIDs: []int64{1, 2}, BasePrice: 22000, CoachingPrice: 7000}, nil
	}
	return nil, repository.ErrPackageNotFound
}

func (s *stubCatalog) GetCoachingOfferingByID(_ context.Context, id int64) (*model.CoachingOffering, error) {
	switch id {
	case 1:
		return &model.CoachingOffering{ID: 1, Name: "30-Minute Coaching Session", DurationMinutes: 30, Price: 5000}, nil
	case 2:
		return &model.CoachingOffering{ID: 2, Name: "60-Minute Coaching Session", DurationMinutes: 60, Price: 9000}, nil
	}
	return nil, repository.ErrOfferingNotFound
}

func newTestCalculator() *Calculator {
	return NewCalculator(&stubCatalog{})
}

func TestPrepareCheckout_CourseWithoutCoupon(t *testing.T) {
	calc := newTestCalculator()

	quote, err := calc.PrepareCheckout(context.Background(), model.PurchaseRequest{
		Type:       model.PurchaseCourse,
		CourseSlug: "intro-to-programming",
	})
	require.NoError(t, err)

	require.Len(t, quote.LineItems, 2)
	assert.Equal(t, int64(10000), quote.LineItems[0].TotalPrice)
	assert.Equal(t, "VAT 7.7%", quote.LineItems[1].Name)
	assert.Equal(t, int64(770), quote.LineItems[1].TotalPrice)
	assert.Equal(t, int64(10770), quote.FinalPrice)
	assert.Equal(t, "CHF", quote.Currency)
}

func TestPrepareCheckout_CourseWithCoupon(t *testing.T) {
	calc := newTestCalculator()

	quote, err := calc.PrepareCheckout(context.Background(), model.PurchaseRequest{
		Type:       model.PurchaseCourse,
		CourseSlug: "intro-to-programming",
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	require.Len(t, quote.LineItems, 3)
	assert.Equal(t, "Discount (SAVE10)", quote.LineItems[1].Name)
	assert.Equal(t, int64(-1000), quote.LineItems[1].TotalPrice)
	assert.Equal(t, int64(693), quote.LineItems[2].TotalPrice)
	assert.Equal(t, int64(9693), quote.FinalPrice)
	assert.Equal(t, "SAVE10", quote.CouponCode)
}

func TestPrepareCheckout_ExpiredCoupon(t *testing.T) {
	calc := newTestCalculator()

	quote, err := calc.PrepareCheckout(context.Background(), model.PurchaseRequest{
		Type:       model.PurchaseCourse,
		CourseSlug: "intro-to-programming",
		CouponCode: "EXPIRED",
	})
	require.Nil(t, quote)

	var checkoutErr *Error
	require.ErrorAs(t, err, &checkoutErr)
	assert.Equal(t, ErrorTypeValidation, checkoutErr.ErrorType)
	assert.Contains(t, checkoutErr.Message, "expired")
}

func TestPrepareCheckout_LineItemsSumToFinalPrice(t *testing.T) {
	calc := newTestCalculator()

	tests := []struct {
		name string
		req  model.PurchaseRequest
		want int64
	}{
		{
			name: "course",
			req:  model.PurchaseRequest{Type: model.PurchaseCourse, CourseSlug: "intro-to-programming"},
			want: 10770,
		},
		{
			name: "course with coaching",
			req:  model.PurchaseRequest{Type: model.PurchaseCourseWithCoaching, CourseSlug: "intro-to-programming"},
			want: 14001,
		},
		{
			name: "package",
			req:  model.PurchaseRequest{Type: model.PurchasePackage, PackageID: 1},
			want: 23694,
		},
		{
			name: "package with coaching and coupon",
			req:  model.PurchaseRequest{Type: model.PurchasePackageWithCoaching, PackageID: 1, CouponCode: "SAVE20"},
			want: 24986,
		},
		{
			name: "coaching sessions",
			req:  model.PurchaseRequest{Type: model.PurchaseCoachingSession, CoachingOfferingID: 2, Quantity: 3},
			want: 29079,
		},
		{
			name: "course coaching components",
			req: model.PurchaseRequest{
				Type:               model.PurchaseCourseCoachingSession,
				CourseSlug:         "intro-to-programming",
				LessonComponentIDs: []int64{11, 12},
			},
			want: 10770,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := calc.PrepareCheckout(context.Background(), tt.req)
			require.NoError(t, err)

			var sum int64
			for _, li := range quote.LineItems {
				sum += li.TotalPrice
			}
			assert.Equal(t, quote.FinalPrice, sum)
			assert.Equal(t, tt.want, quote.FinalPrice)
		})
	}
}

func TestPrepareCheckout_LineItemOrder(t *testing.T) {
	calc := newTestCalculator()

	quote, err := calc.PrepareCheckout(context.Background(), model.PurchaseRequest{
		Type:       model.PurchasePackageWithCoaching,
		PackageID:  1,
		CouponCode: "SAVE10",
	})
	require.NoError(t, err)

	require.Len(t, quote.LineItems, 4)
	assert.Equal(t, "Web Development Bundle", quote.LineItems[0].Name)
	assert.Equal(t, "Web Development Bundle - Coaching Sessions", quote.LineItems[1].Name)
	assert.Equal(t, "Discount (SAVE10)", quote.LineItems[2].Name)
	assert.Equal(t, "VAT 7.7%", quote.LineItems[3].Name)
}

func TestPrepareCheckout_CoachingSessionDefaultQuantity(t *testing.T) {
	calc := newTestCalculator()

	quote, err := calc.PrepareCheckout(context.Background(), model.PurchaseRequest{
		Type:               model.PurchaseCoachingSession,
		CoachingOfferingID: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), quote.LineItems[0].Quantity)
	assert.Equal(t, int64(5000), quote.LineItems[0].TotalPrice)
}

func TestPrepareCheckout_Errors(t *testing.T) {
	calc := newTestCalculator()

	tests := []struct {
		name     string
		req      model.PurchaseRequest
		wantType ErrorType
	}{
		{
			name:     "unknown course",
			req:      model.PurchaseRequest{Type: model.PurchaseCourse, CourseSlug: "no-such-course"},
			wantType: ErrorTypeNotFound,
		},
		{
			name:     "unknown package",
			req:      model.PurchaseRequest{Type: model.PurchasePackage, PackageID: 99},
			wantType: ErrorTypeNotFound,
		},
		{
			name:     "unknown offering",
			req:      model.PurchaseRequest{Type: model.PurchaseCoachingSession, CoachingOfferingID: 99},
			wantType: ErrorTypeNotFound,
		},
		{
			name:     "missing course slug",
			req:      model.PurchaseRequest{Type: model.PurchaseCourse},
			wantType: ErrorTypeValidation,
		},
		{
			name:     "negative quantity",
			req:      model.PurchaseRequest{Type: model.PurchaseCoachingSession, CoachingOfferingID: 1, Quantity: -2},
			wantType: ErrorTypeValidation,
		},
		{
			name:     "missing lesson components",
			req:      model.PurchaseRequest{Type: model.PurchaseCourseCoachingSession, CourseSlug: "intro-to-programming"},
			wantType: ErrorTypeValidation,
		},
		{
			name:     "unknown purchase type",
			req:      model.PurchaseRequest{Type: "StudentMagicPurchase"},
			wantType: ErrorTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := calc.PrepareCheckout(context.Background(), tt.req)
			require.Nil(t, quote)

			var checkoutErr *Error
			require.ErrorAs(t, err, &checkoutErr)
			assert.Equal(t, tt.wantType, checkoutErr.ErrorType)
		})
	}
}
