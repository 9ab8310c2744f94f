package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/boxoffice/internal/checkout/domain"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	inventorydomain "github.com/smallbiznis/boxoffice/internal/inventory/domain"
	ledgerdomain "github.com/smallbiznis/boxoffice/internal/ledger/domain"
	payoutdomain "github.com/smallbiznis/boxoffice/internal/payout/domain"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrOrganizerRequired  = errors.New("organizer_required")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = "1"

type errorRule struct {
	target  error
	status  int
	kind    string
	code    string
	message string
}

// errorRules is matched in order. Wrapping sentinels must precede what they wrap:
// an exhausted retry carries both ErrUnavailable and ErrVersionConflict, and
// ErrFieldLocked wraps ErrIllegalTransition.
var errorRules = []errorRule{
	{target: db.ErrUnavailable, status: http.StatusServiceUnavailable, kind: "service_unavailable", message: "service unavailable"},
	{target: ErrServiceUnavailable, status: http.StatusServiceUnavailable, kind: "service_unavailable", message: "service unavailable"},
	{target: ErrRateLimited, status: http.StatusTooManyRequests, kind: "rate_limited", message: "too many requests"},
	{target: ErrOrganizerRequired, status: http.StatusUnauthorized, kind: "unauthorized", message: "organizer required"},
	{target: ErrForbidden, status: http.StatusForbidden, kind: "forbidden", message: "forbidden"},
	{target: payoutdomain.ErrAccountNotOwned, status: http.StatusForbidden, kind: "forbidden", message: "bank account does not belong to the event organizer"},
	{target: checkoutdomain.ErrChargeFailed, status: http.StatusPaymentRequired, kind: "payment_failed", message: "payment failed"},

	{target: eventdomain.ErrFieldLocked, status: http.StatusConflict, kind: "conflict", code: "field_locked", message: "field is locked once the event is public"},
	{target: eventdomain.ErrPublishRequirements, status: http.StatusConflict, kind: "conflict", code: "publish_requirements_unmet", message: "event needs a venue, a date and an active category"},
	{target: eventdomain.ErrIllegalTransition, status: http.StatusConflict, kind: "conflict", message: "illegal state transition"},
	{target: inventorydomain.ErrInsufficientInventory, status: http.StatusConflict, kind: "conflict", message: "not enough tickets available"},
	{target: inventorydomain.ErrCategoryDisabled, status: http.StatusConflict, kind: "conflict", message: "ticket category is disabled"},
	{target: ledgerdomain.ErrRefundExceedsGross, status: http.StatusConflict, kind: "conflict", message: "refund exceeds gross revenue"},
	{target: ledgerdomain.ErrRefundExceedsBalance, status: http.StatusConflict, kind: "conflict", message: "refund exceeds available balance"},
	{target: ledgerdomain.ErrPayoutExceedsBalance, status: http.StatusConflict, kind: "conflict", message: "payout exceeds available balance"},
	{target: ledgerdomain.ErrReservationMismatch, status: http.StatusConflict, kind: "conflict", message: "payout reservation mismatch"},
	{target: ledgerdomain.ErrLedgerRetired, status: http.StatusConflict, kind: "conflict", message: "ledger is retired"},
	{target: ledgerdomain.ErrNotRetirable, status: http.StatusConflict, kind: "conflict", message: "ledger cannot be retired yet"},
	{target: ledgerdomain.ErrReferenceConflict, status: http.StatusConflict, kind: "conflict", message: "reference already booked with a different amount"},
	{target: ledgerdomain.ErrReplayMismatch, status: http.StatusConflict, kind: "conflict", message: "ledger figures do not match its transactions"},
	{target: promodomain.ErrCodeExpired, status: http.StatusConflict, kind: "conflict", message: "promo code is outside its validity window"},
	{target: promodomain.ErrCodeExhausted, status: http.StatusConflict, kind: "conflict", message: "promo code has no uses left"},
	{target: promodomain.ErrCodeNotApplicable, status: http.StatusConflict, kind: "conflict", message: "promo code does not apply to this category"},
	{target: promodomain.ErrPerCustomerLimitReached, status: http.StatusConflict, kind: "conflict", message: "customer already used this promo code"},
	{target: promodomain.ErrMinimumNotMet, status: http.StatusConflict, kind: "conflict", message: "minimum purchase amount not met"},
	{target: promodomain.ErrDuplicateCode, status: http.StatusConflict, kind: "conflict", message: "promo code already exists for this event"},
	{target: checkoutdomain.ErrEventNotOnSale, status: http.StatusConflict, kind: "conflict", message: "event is not on sale"},
	{target: checkoutdomain.ErrDuplicateTransaction, status: http.StatusConflict, kind: "conflict", message: "transaction already recorded"},
	{target: db.ErrVersionConflict, status: http.StatusConflict, kind: "conflict", message: "concurrent update, retry"},

	{target: ErrNotFound, status: http.StatusNotFound, kind: "not_found", message: "not found"},
	{target: eventdomain.ErrNotFound, status: http.StatusNotFound, kind: "not_found", message: "event not found"},
	{target: inventorydomain.ErrNotFound, status: http.StatusNotFound, kind: "not_found", message: "ticket category not found"},
	{target: ledgerdomain.ErrLedgerNotFound, status: http.StatusNotFound, kind: "not_found", message: "ledger not found"},
	{target: payoutdomain.ErrNotFound, status: http.StatusNotFound, kind: "not_found", message: "payout not found"},
	{target: payoutdomain.ErrAccountNotFound, status: http.StatusNotFound, kind: "not_found", message: "bank account not found"},
	{target: promodomain.ErrCodeNotFound, status: http.StatusNotFound, kind: "not_found", message: "promo code not found"},
	{target: gorm.ErrRecordNotFound, status: http.StatusNotFound, kind: "not_found", code: "not_found", message: "not found"},
}

var validationTargets = []error{
	ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
	eventdomain.ErrInvalidOrganizer,
	eventdomain.ErrInvalidName,
	eventdomain.ErrInvalidCurrency,
	eventdomain.ErrInvalidDate,
	eventdomain.ErrInvalidID,
	eventdomain.ErrReasonRequired,
	inventorydomain.ErrInvalidQuantity,
	inventorydomain.ErrInvalidName,
	inventorydomain.ErrInvalidPrice,
	ledgerdomain.ErrNegativeAmount,
	ledgerdomain.ErrInvalidReference,
	payoutdomain.ErrPayoutBelowMinimum,
	payoutdomain.ErrInvalidAccount,
	payoutdomain.ErrInvalidOrganizer,
	payoutdomain.ErrInvalidOutcome,
	payoutdomain.ErrOutcomeRequired,
	promodomain.ErrInvalidCode,
	promodomain.ErrInvalidKind,
	promodomain.ErrInvalidValue,
	promodomain.ErrInvalidLimit,
	promodomain.ErrInvalidWindow,
	promodomain.ErrInvalidSubtotal,
	promodomain.ErrInvalidTransaction,
	promodomain.ErrCustomerRequired,
	promodomain.ErrCategoryNotInEvent,
	checkoutdomain.ErrInvalidTransaction,
	checkoutdomain.ErrCategoryNotInEvent,
	checkoutdomain.ErrInvalidRefund,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusServiceUnavailable && c.Writer.Header().Get("Retry-After") == "" {
			c.Header("Retry-After", retryAfterSeconds)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// Unavailability wins over everything, including validation codes it may wrap.
	if errors.Is(err, db.ErrUnavailable) {
		return ruleStatus(errorRules[0])
	}

	if target := validationTarget(err); target != nil {
		code := target.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	for _, rule := range errorRules {
		if errors.Is(err, rule.target) {
			return ruleStatus(rule)
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func ruleStatus(rule errorRule) (int, errorPayload) {
	code := rule.code
	if code == "" {
		code = rule.target.Error()
	}
	return rule.status, errorPayload{
		Type:    rule.kind,
		Code:    code,
		Message: rule.message,
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code fields.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationTarget(err error) error {
	for _, target := range validationTargets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_page_token":
		return "page_token"
	case "negative_amount", "payout_below_minimum":
		return "amount"
	case "reason_required":
		return "reason"
	case "customer_required":
		return "customer_id"
	case "outcome_required":
		return "outcome"
	case "category_not_in_event":
		return "category_id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "payout_below_minimum":
		return "amount is below the minimum payout"
	case "customer_required":
		return "promo code is limited per customer"
	case "category_not_in_event":
		return "category does not belong to this event"
	default:
		return "invalid value"
	}
}
