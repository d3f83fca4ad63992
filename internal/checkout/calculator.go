// Package checkout реализует расчёт стоимости покупки: строки счёта,
// купонные скидки и НДС.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/anikulin/checkout-system/internal/model"
	"github.com/anikulin/checkout-system/internal/repository"
)

const opPrepareCheckout = "prepare_checkout"

const (
	// Швейцарский НДС 7.7%, в промилле для точной целочисленной арифметики.
	vatRatePermille = 77
	// Цена коучинга по одному компоненту урока, в сантимах.
	lessonComponentPrice = 5000
)

// Catalog описывает доступ к каталогу товаров, необходимый калькулятору.
type Catalog interface {
	GetCourseBySlug(ctx context.Context, slug string) (*model.Course, error)
	GetPackageByID(ctx context.Context, id int64) (*model.Package, error)
	GetCoachingOfferingByID(ctx context.Context, id int64) (*model.CoachingOffering, error)
}

// Calculator считает стоимость покупки по каталожным ценам.
type Calculator struct {
	catalog Catalog
}

// NewCalculator создаёт калькулятор поверх указанного каталога.
func NewCalculator(catalog Catalog) *Calculator {
	return &Calculator{catalog: catalog}
}

// PrepareCheckout валидирует купон, собирает строки счёта по типу покупки,
// применяет скидку и НДС. Ошибки домена возвращаются как *Error.
func (c *Calculator) PrepareCheckout(ctx context.Context, req model.PurchaseRequest) (*model.Quote, error) {
	if couponErr := validateCoupon(req.CouponCode); couponErr != nil {
		return nil, couponErr
	}

	var lineItems []model.LineItem
	var subtotal int64

	switch req.Type {
	case model.PurchaseCourse, model.PurchaseCourseWithCoaching:
		course, err := c.resolveCourse(ctx, req.CourseSlug)
		if err != nil {
			return nil, err
		}

		lineItems = append(lineItems, productLine(course.Title, "Online course access", course.BasePrice, 1))
		subtotal = course.BasePrice

		if req.Type == model.PurchaseCourseWithCoaching {
			lineItems = append(lineItems, productLine(
				course.Title+" - Coaching Sessions",
				"Personalized coaching sessions",
				course.CoachingPrice, 1,
			))
			subtotal += course.CoachingPrice
		}

	case model.PurchasePackage, model.PurchasePackageWithCoaching:
		pkg, err := c.resolvePackage(ctx, req.PackageID)
		if err != nil {
			return nil, err
		}

		lineItems = append(lineItems, productLine(
			pkg.Title,
			fmt.Sprintf("Package with %d courses", len(pkg.CourseIDs)),
			pkg.BasePrice, 1,
		))
		subtotal = pkg.BasePrice

		if req.Type == model.PurchasePackageWithCoaching {
			lineItems = append(lineItems, productLine(
				pkg.Title+" - Coaching Sessions",
				"Coaching sessions for all courses",
				pkg.CoachingPrice, 1,
			))
			subtotal += pkg.CoachingPrice
		}

	case model.PurchaseCoachingSession:
		offering, err := c.resolveOffering(ctx, req.CoachingOfferingID)
		if err != nil {
			return nil, err
		}

		qty := req.Quantity
		if qty < 0 {
			return nil, newValidationError(opPrepareCheckout, "Quantity must be positive", map[string]any{
				"quantity": req.Quantity,
			})
		}
		if qty == 0 {
			qty = 1
		}

		lineItems = append(lineItems, productLine(
			offering.Name,
			fmt.Sprintf("%d-minute coaching session", offering.DurationMinutes),
			offering.Price, qty,
		))
		subtotal = offering.Price * qty

	case model.PurchaseCourseCoachingSession:
		if len(req.LessonComponentIDs) == 0 {
			return nil, newValidationError(opPrepareCheckout, "Lesson component ids are required", map[string]any{
				"courseSlug": req.CourseSlug,
			})
		}

		course, err := c.resolveCourse(ctx, req.CourseSlug)
		if err != nil {
			return nil, err
		}

		qty := int64(len(req.LessonComponentIDs))
		lineItems = append(lineItems, productLine(
			"Course Coaching - "+course.Slug,
			fmt.Sprintf("Coaching for %d lesson component(s)", qty),
			lessonComponentPrice, qty,
		))
		subtotal = lessonComponentPrice * qty

	default:
		return nil, newValidationError(opPrepareCheckout, "Invalid purchase type", map[string]any{
			"type": string(req.Type),
		})
	}

	discount := couponDiscount(subtotal, req.CouponCode)
	if discount > 0 {
		lineItems = append(lineItems, model.LineItem{
			Name:        fmt.Sprintf("Discount (%s)", req.CouponCode),
			Description: "Coupon discount",
			UnitPrice:   -discount,
			Quantity:    1,
			TotalPrice:  -discount,
			Currency:    model.Currency,
		})
	}

	taxable := subtotal - discount
	vat := calculateVAT(taxable)
	lineItems = append(lineItems, model.LineItem{
		Name:        "VAT 7.7%",
		Description: "Swiss Value Added Tax",
		UnitPrice:   vat,
		Quantity:    1,
		TotalPrice:  vat,
		Currency:    model.Currency,
	})

	return &model.Quote{
		LineItems:  lineItems,
		Currency:   model.Currency,
		FinalPrice: taxable + vat,
		CouponCode: req.CouponCode,
	}, nil
}

func (c *Calculator) resolveCourse(ctx context.Context, slug string) (*model.Course, error) {
	if slug == "" {
		return nil, newValidationError(opPrepareCheckout, "Course slug is required", nil)
	}

	course, err := c.catalog.GetCourseBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrCourseNotFound) {
			return nil, newNotFoundError(opPrepareCheckout, "Course not found", map[string]any{
				"courseSlug": slug,
			})
		}
		return nil, fmt.Errorf("resolve course: %w", err)
	}

	return course, nil
}

func (c *Calculator) resolvePackage(ctx context.Context, id int64) (*model.Package, error) {
	if id == 0 {
		return nil, newValidationError(opPrepareCheckout, "Package id is required", nil)
	}

	pkg, err := c.catalog.GetPackageByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPackageNotFound) {
			return nil, newNotFoundError(opPrepareCheckout, "Package not found", map[string]any{
				"packageId": id,
			})
		}
		return nil, fmt.Errorf("resolve package: %w", err)
	}

	return pkg, nil
}

func (c *Calculator) resolveOffering(ctx context.Context, id int64) (*model.CoachingOffering, error) {
	if id == 0 {
		return nil, newValidationError(opPrepareCheckout, "Coaching offering id is required", nil)
	}

	offering, err := c.catalog.GetCoachingOfferingByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOfferingNotFound) {
			return nil, newNotFoundError(opPrepareCheckout, "Coaching offering not found", map[string]any{
				"coachingOfferingId": id,
			})
		}
		return nil, fmt.Errorf("resolve coaching offering: %w", err)
	}

	return offering, nil
}

func productLine(name, description string, unitPrice, quantity int64) model.LineItem {
	return model.LineItem{
		Name:        name,
		Description: description,
		UnitPrice:   unitPrice,
		Quantity:    quantity,
		TotalPrice:  unitPrice * quantity,
		Currency:    model.Currency,
	}
}

// calculateVAT считает НДС от суммы в сантимах с округлением до ближайшего сантима.
func calculateVAT(amount int64) int64 {
	return (amount*vatRatePermille + 500) / 1000
}
