// Package model содержит доменные сущности сервиса оплаты обучения.
package model

import "time"

// Currency — единственная валюта, в которой выставляются счета.
const Currency = "CHF"

// User представляет зарегистрированного пользователя платформы.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Course описывает курс каталога с ценой доступа и ценой коучинга.
// Все цены хранятся в сантимах.
type Course struct {
	ID            int64
	Slug          string
	Title         string
	BasePrice     int64
	CoachingPrice int64
}

// Package описывает пакет из нескольких курсов с общей ценой.
type Package struct {
	ID            int64
	Title         string
	CourseIDs     []int64
	BasePrice     int64
	CoachingPrice int64
}

// CoachingOffering описывает разовую коуч-сессию фиксированной длительности.
type CoachingOffering struct {
	ID              int64
	Name            string
	DurationMinutes int64
	Price           int64
}

// PurchaseType различает варианты запроса на покупку.
type PurchaseType string

const (
	PurchaseCourse                PurchaseType = "StudentCoursePurchase"
	PurchaseCourseWithCoaching    PurchaseType = "StudentCoursePurchaseWithCoaching"
	PurchasePackage               PurchaseType = "StudentPackagePurchase"
	PurchasePackageWithCoaching   PurchaseType = "StudentPackagePurchaseWithCoaching"
	PurchaseCoachingSession       PurchaseType = "StudentCoachingSessionPurchase"
	PurchaseCourseCoachingSession PurchaseType = "StudentCourseCoachingSessionPurchase"
)

// PurchaseRequest — запрос на расчёт стоимости покупки. Набор заполненных
// полей зависит от типа покупки.
type PurchaseRequest struct {
	Type               PurchaseType `json:"type"`
	CourseSlug         string       `json:"courseSlug,omitempty"`
	PackageID          int64        `json:"packageId,omitempty"`
	CoachingOfferingID int64        `json:"coachingOfferingId,omitempty"`
	Quantity           int64        `json:"quantity,omitempty"`
	LessonComponentIDs []int64      `json:"lessonComponentIds,omitempty"`
	CouponCode         string       `json:"couponCode,omitempty"`
}

// LineItem — одна строка счёта: товар, скидка или налог.
// Для скидки и налога quantity равен 1, а totalPrice совпадает с unitPrice.
type LineItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int64  `json:"quantity"`
	TotalPrice  int64  `json:"totalPrice"`
	Currency    string `json:"currency"`
}

// Quote — итог расчёта стоимости покупки.
type Quote struct {
	LineItems  []LineItem `json:"lineItems"`
	Currency   string     `json:"currency"`
	FinalPrice int64      `json:"finalPrice"`
	CouponCode string     `json:"couponCode,omitempty"`
}

// TransactionStatus описывает состояние транзакции в леджере.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusComplete TransactionStatus = "complete"
	TransactionStatusFailed   TransactionStatus = "failed"
)

// Transaction — запись о платеже, привязанная к сессии платёжного провайдера.
// Создаётся не более одного раза на session id и после записи не изменяется.
type Transaction struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"sessionId"`
	UserID        int64             `json:"userId"`
	PurchaseType  string            `json:"purchaseType"`
	Items         []LineItem        `json:"items"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        TransactionStatus `json:"status"`
	Metadata      map[string]string `json:"metadata"`
	ProcessedAt   time.Time         `json:"processedAt"`
	CustomerEmail string            `json:"customerEmail"`
}

// UnlockResult — результат подтверждения оплаты и выдачи доступа.
type UnlockResult struct {
	Success            bool              `json:"success"`
	AlreadyProcessed   bool              `json:"alreadyProcessed"`
	Transaction        *Transaction      `json:"transaction"`
	PurchaseType       string            `json:"purchaseType"`
	PurchaseIdentifier map[string]string `json:"purchaseIdentifier"`
	PurchasedItems     []LineItem        `json:"purchasedItems"`
	CustomerEmail      string            `json:"customerEmail"`
}
