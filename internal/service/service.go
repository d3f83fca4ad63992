// Package service реализует бизнес-логику сервиса оплаты обучения.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anikulin/checkout-system/internal/checkout"
	"github.com/anikulin/checkout-system/internal/model"
	"github.com/anikulin/checkout-system/internal/payments"
	"github.com/anikulin/checkout-system/internal/repository"
)

// Количество коуч-кредитов, выдаваемых за каждый купленный с коучингом курс.
const creditsPerCourse = 5

// paymentStatusPaid — статус сессии провайдера, разрешающий выдачу доступа.
const paymentStatusPaid = "paid"

// ErrVerificationFailed возвращается, когда проверить оплату у провайдера не
// удалось. Повторную попытку выполняет вызывающая сторона.
var ErrVerificationFailed = errors.New("failed to verify payment with provider")

// ClientError — ошибка, вызванная некорректным запросом или состоянием
// платёжной сессии; транслируется клиенту как ошибка запроса.
type ClientError struct {
	msg string
}

func (e *ClientError) Error() string {
	return e.msg
}

// NewClientError создаёт ошибку клиента с форматированным сообщением.
func NewClientError(format string, args ...any) *ClientError {
	return &ClientError{msg: fmt.Sprintf(format, args...)}
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetCourseBySlug(ctx context.Context, slug string) (*model.Course, error)
	GetPackageByID(ctx context.Context, id int64) (*model.Package, error)
	GetCoachingOfferingByID(ctx context.Context, id int64) (*model.CoachingOffering, error)
	GetTransactionBySessionID(ctx context.Context, sessionID string) (*model.Transaction, error)
	RecordUnlock(ctx context.Context, txn *model.Transaction, courseIDs []int64, credits int64) (*model.Transaction, bool, error)
	GetEnrollments(ctx context.Context, userID int64) ([]int64, error)
	GetCoachingCredits(ctx context.Context, userID int64) (int64, error)
}

// SessionVerifier описывает клиент платёжного провайдера.
type SessionVerifier interface {
	GetSessionStatus(ctx context.Context, sessionID string) (*payments.SessionStatus, error)
}

// Service содержит бизнес-логику сервиса оплаты.
type Service struct {
	repo       Repository
	verifier   SessionVerifier
	calculator *checkout.Calculator
	logger     *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом провайдера.
func NewService(repo Repository, verifier SessionVerifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		verifier:   verifier,
		calculator: checkout.NewCalculator(repo),
		logger:     logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// PrepareCheckout рассчитывает стоимость покупки.
func (s *Service) PrepareCheckout(ctx context.Context, req model.PurchaseRequest) (*model.Quote, error) {
	return s.calculator.PrepareCheckout(ctx, req)
}

// GetEnrollments возвращает идентификаторы курсов, открытых пользователю.
func (s *Service) GetEnrollments(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.GetEnrollments(ctx, userID)
}

// GetCoachingCredits возвращает баланс коуч-кредитов пользователя.
func (s *Service) GetCoachingCredits(ctx context.Context, userID int64) (int64, error) {
	return s.repo.GetCoachingCredits(ctx, userID)
}

// UnlockPurchase подтверждает оплату у провайдера и идемпотентно выдаёт
// пользователю купленные доступы. Повторный вызов с тем же session id
// возвращает уже записанную транзакцию без побочных эффектов.
func (s *Service) UnlockPurchase(ctx context.Context, userID int64, sessionID string) (*model.UnlockResult, error) {
	if sessionID == "" {
		return nil, NewClientError("session id is required")
	}

	existing, err := s.repo.GetTransactionBySessionID(ctx, sessionID)
	if err != nil && !errors.Is(err, repository.ErrTransactionNotFound) {
		return nil, fmt.Errorf("lookup transaction: %w", err)
	}
	if existing != nil {
		s.logger.Info("session already processed", zap.String("sessionID", sessionID))
		return resultFromTransaction(existing, true), nil
	}

	status, err := s.verifier.GetSessionStatus(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVerificationFailed, err)
	}

	if status.PaymentStatus != paymentStatusPaid {
		return nil, NewClientError("Payment not completed. Status: %s", status.PaymentStatus)
	}

	metadata := status.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	purchaseType := metadata["purchaseType"]
	if purchaseType == "" {
		return nil, NewClientError("Invalid session metadata: missing purchase type")
	}

	currency := status.Currency
	if currency == "" {
		currency = "chf"
	}

	txn := &model.Transaction{
		ID:            newTransactionID(),
		SessionID:     sessionID,
		UserID:        userID,
		PurchaseType:  purchaseType,
		Items:         []model.LineItem{},
		Amount:        status.AmountTotal,
		Currency:      currency,
		Status:        model.TransactionStatusComplete,
		Metadata:      metadata,
		ProcessedAt:   time.Now().UTC(),
		CustomerEmail: status.CustomerEmail,
	}

	plan, err := s.entitlementPlan(ctx, userID, purchaseType, metadata)
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			// Оплата уже подтверждена, но выдать доступ нечем: фиксируем
			// транзакцию как failed для последующей сверки.
			txn.Status = model.TransactionStatusFailed
			if _, _, recErr := s.repo.RecordUnlock(ctx, txn, nil, 0); recErr != nil {
				return nil, fmt.Errorf("record failed transaction: %w", recErr)
			}
			s.logger.Warn("paid session with unknown purchase type",
				zap.String("sessionID", sessionID),
				zap.String("purchaseType", purchaseType),
			)
		}
		return nil, err
	}

	recorded, alreadyProcessed, err := s.repo.RecordUnlock(ctx, txn, plan.courseIDs, plan.credits)
	if err != nil {
		return nil, fmt.Errorf("record unlock: %w", err)
	}

	if alreadyProcessed {
		s.logger.Info("session already processed", zap.String("sessionID", sessionID))
		return resultFromTransaction(recorded, true), nil
	}

	s.logger.Info("purchase unlocked",
		zap.String("sessionID", sessionID),
		zap.Int64("userID", userID),
		zap.String("purchaseType", purchaseType),
		zap.Int64s("courseIDs", plan.courseIDs),
		zap.Int64("credits", plan.credits),
	)

	res := resultFromTransaction(recorded, false)
	res.PurchaseIdentifier = plan.identifier
	return res, nil
}

type entitlementPlan struct {
	courseIDs  []int64
	credits    int64
	identifier map[string]string
}

// entitlementPlan определяет по метаданным сессии, какие курсы открыть и
// сколько кредитов зачислить. Отсутствие товара в каталоге не считается
// ошибкой: оплата уже подтверждена, транзакция фиксируется без выдачи.
func (s *Service) entitlementPlan(ctx context.Context, userID int64, purchaseType string, metadata map[string]string) (*entitlementPlan, error) {
	withCoaching := metadata["withCoaching"] == "true"

	switch model.PurchaseType(purchaseType) {
	case model.PurchaseCourse, model.PurchaseCourseWithCoaching:
		slug := metadata["courseSlug"]
		identifier := map[string]string{"courseSlug": slug}

		course, err := s.repo.GetCourseBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, repository.ErrCourseNotFound) {
				s.logger.Warn("course not found for paid session",
					zap.String("courseSlug", slug),
					zap.Int64("userID", userID),
				)
				return &entitlementPlan{identifier: identifier}, nil
			}
			return nil, fmt.Errorf("resolve course: %w", err)
		}

		plan := &entitlementPlan{
			courseIDs:  []int64{course.ID},
			identifier: identifier,
		}
		if withCoaching {
			plan.credits = creditsPerCourse
		}
		return plan, nil

	case model.PurchasePackage, model.PurchasePackageWithCoaching:
		identifier := map[string]string{"packageId": metadata["packageId"]}

		packageID, err := strconv.ParseInt(metadata["packageId"], 10, 64)
		if err != nil {
			s.logger.Warn("package id not parseable for paid session",
				zap.String("packageId", metadata["packageId"]),
				zap.Int64("userID", userID),
			)
			return &entitlementPlan{identifier: identifier}, nil
		}

		pkg, err := s.repo.GetPackageByID(ctx, packageID)
		if err != nil {
			if errors.Is(err, repository.ErrPackageNotFound) {
				s.logger.Warn("package not found for paid session",
					zap.Int64("packageID", packageID),
					zap.Int64("userID", userID),
				)
				return &entitlementPlan{identifier: identifier}, nil
			}
			return nil, fmt.Errorf("resolve package: %w", err)
		}

		// Явный список курсов в метаданных сужает выдачу; иначе открываются
		// все курсы пакета.
		courseIDs := pkg.CourseIDs
		if raw := metadata["courseIds"]; raw != "" {
			courseIDs = parseCourseIDs(raw)
		}

		plan := &entitlementPlan{
			courseIDs:  courseIDs,
			identifier: identifier,
		}
		if withCoaching {
			plan.credits = creditsPerCourse * int64(len(courseIDs))
		}
		return plan, nil

	case model.PurchaseCoachingSession:
		qty, err := strconv.ParseInt(metadata["quantity"], 10, 64)
		if err != nil || qty <= 0 {
			qty = 1
		}

		offeringID := metadata["coachingOfferingId"]
		if offeringID == "" {
			offeringID = "0"
		}

		return &entitlementPlan{
			credits:    qty,
			identifier: map[string]string{"offeringId": offeringID},
		}, nil

	default:
		return nil, NewClientError("Unknown purchase type: %s", purchaseType)
	}
}

func parseCourseIDs(raw string) []int64 {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func resultFromTransaction(txn *model.Transaction, alreadyProcessed bool) *model.UnlockResult {
	return &model.UnlockResult{
		Success:            true,
		AlreadyProcessed:   alreadyProcessed,
		Transaction:        txn,
		PurchaseType:       txn.PurchaseType,
		PurchaseIdentifier: txn.Metadata,
		PurchasedItems:     txn.Items,
		CustomerEmail:      txn.CustomerEmail,
	}
}

func newTransactionID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("txn_%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("txn_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}
