package checkout

import "fmt"

// ErrorType классифицирует ошибки расчёта стоимости.
type ErrorType string

const (
	// ErrorTypeValidation — некорректный запрос: неизвестный тип покупки,
	// неверный формат купона, отсутствующий обязательный идентификатор.
	ErrorTypeValidation ErrorType = "ValidationError"
	// ErrorTypeNotFound — купон или оплачиваемая сущность не найдены.
	ErrorTypeNotFound ErrorType = "NotFoundError"
)

// Error — структурная ошибка расчёта стоимости, возвращаемая клиенту как есть.
type Error struct {
	ErrorType ErrorType      `json:"errorType"`
	Message   string         `json:"message"`
	Operation string         `json:"operation"`
	Context   map[string]any `json:"context,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.ErrorType, e.Message, e.Operation)
}

func newValidationError(operation, message string, context map[string]any) *Error {
	return &Error{
		ErrorType: ErrorTypeValidation,
		Message:   message,
		Operation: operation,
		Context:   context,
	}
}

func newNotFoundError(operation, message string, context map[string]any) *Error {
	return &Error{
		ErrorType: ErrorTypeNotFound,
		Message:   message,
		Operation: operation,
		Context:   context,
	}
}
