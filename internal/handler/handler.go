// Package handler содержит HTTP-обработчики API сервиса оплаты.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/anikulin/checkout-system/internal/checkout"
	"github.com/anikulin/checkout-system/internal/middleware"
	"github.com/anikulin/checkout-system/internal/model"
	"github.com/anikulin/checkout-system/internal/repository"
	"github.com/anikulin/checkout-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	PrepareCheckout(ctx context.Context, req model.PurchaseRequest) (*model.Quote, error)
	UnlockPurchase(ctx context.Context, userID int64, sessionID string) (*model.UnlockResult, error)
	GetEnrollments(ctx context.Context, userID int64) ([]int64, error)
	GetCoachingCredits(ctx context.Context, userID int64) (int64, error)
}

// Handler реализует HTTP-обработчики API сервиса оплаты.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || err.Error() == "invalid credentials" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

// PrepareCheckout рассчитывает стоимость покупки по запросу клиента.
func (h *Handler) PrepareCheckout(w http.ResponseWriter, r *http.Request) {
	var req model.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	quote, err := h.service.PrepareCheckout(r.Context(), req)
	if err != nil {
		var checkoutErr *checkout.Error
		if errors.As(err, &checkoutErr) {
			h.writeCheckoutError(w, checkoutErr)
			return
		}
		h.logger.Error("prepare checkout error", zap.Error(err), zap.String("type", string(req.Type)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

type unlockRequest struct {
	SessionID string `json:"sessionId"`
}

type unlockErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnlockPurchase подтверждает оплату и выдаёт текущему пользователю купленные доступы.
func (h *Handler) UnlockPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := h.service.UnlockPurchase(r.Context(), userID, req.SessionID)
	if err != nil {
		var clientErr *service.ClientError
		switch {
		case errors.As(err, &clientErr):
			h.writeJSON(w, http.StatusBadRequest, unlockErrorResponse{
				Code:    "bad_request",
				Message: clientErr.Error(),
			})
		case errors.Is(err, service.ErrVerificationFailed):
			h.logger.Error("payment verification error", zap.Error(err), zap.String("sessionID", req.SessionID))
			h.writeJSON(w, http.StatusInternalServerError, unlockErrorResponse{
				Code:    "internal_server_error",
				Message: "Failed to verify payment with provider",
			})
		default:
			h.logger.Error("unlock purchase error", zap.Error(err), zap.String("sessionID", req.SessionID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

type enrollmentsResponse struct {
	CourseIDs []int64 `json:"courseIds"`
}

// GetEnrollments возвращает курсы, открытые текущему пользователю.
func (h *Handler) GetEnrollments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	courseIDs, err := h.service.GetEnrollments(r.Context(), userID)
	if err != nil {
		h.logger.Error("get enrollments error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(courseIDs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(w, http.StatusOK, enrollmentsResponse{CourseIDs: courseIDs})
}

type creditsResponse struct {
	Credits int64 `json:"credits"`
}

// GetCoachingCredits возвращает баланс коуч-кредитов текущего пользователя.
func (h *Handler) GetCoachingCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	credits, err := h.service.GetCoachingCredits(r.Context(), userID)
	if err != nil {
		h.logger.Error("get coaching credits error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, creditsResponse{Credits: credits})
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, checkoutErr *checkout.Error) {
	status := http.StatusUnprocessableEntity
	if checkoutErr.ErrorType == checkout.ErrorTypeNotFound {
		status = http.StatusNotFound
	}
	h.writeJSON(w, status, checkoutErr)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}
