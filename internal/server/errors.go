package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/storefront-ledger/internal/account/domain"
	"github.com/smallbiznis/storefront-ledger/internal/authorization"
	bonusdomain "github.com/smallbiznis/storefront-ledger/internal/bonus/domain"
	"github.com/smallbiznis/storefront-ledger/internal/observability/metrics"
	"github.com/smallbiznis/storefront-ledger/internal/orderevents"
	payoutdomain "github.com/smallbiznis/storefront-ledger/internal/payout/domain"
	referraldomain "github.com/smallbiznis/storefront-ledger/internal/referral/domain"
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
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// fieldRule binds a service input error to the request field it blames.
type fieldRule struct {
	err     error
	field   string
	message string
}

var fieldRules = []fieldRule{
	{ErrInvalidRequest, "request", "invalid request"},
	{payoutdomain.ErrInvalidAmount, "amount", "amount must be positive with at most two decimal places"},
	{payoutdomain.ErrBelowMinimum, "amount", "amount is below the minimum withdrawal"},
	{payoutdomain.ErrMissingPaymentDetails, "payment_details", "payment details are required"},
	{payoutdomain.ErrInvalidDateRange, "created_from", "created_from must not be after created_to"},
	{referraldomain.ErrSelfReferral, "referral_code", "cannot refer yourself"},
	{referraldomain.ErrInvalidReferralCode, "referral_code", "unknown referral code"},
	{bonusdomain.ErrInvalidMinAge, "min_age_days", "invalid value"},
	{orderevents.ErrInvalidEvent, "order_id", "invalid order event"},
	{orderevents.ErrUnknownEventType, "type", "unsupported event type"},
}

// statusRule maps a family of sentinels to one response. An empty message
// echoes the sentinel text.
type statusRule struct {
	errs    []error
	status  int
	kind    string
	message string
}

var statusRules = []statusRule{
	{
		errs:    []error{ErrUnauthorized},
		status:  http.StatusUnauthorized,
		kind:    "unauthorized",
		message: "unauthorized",
	},
	{
		errs:    []error{ErrForbidden, authorization.ErrForbidden},
		status:  http.StatusForbidden,
		kind:    "forbidden",
		message: "forbidden",
	},
	{
		errs:    []error{payoutdomain.ErrInsufficientFunds},
		status:  http.StatusConflict,
		kind:    "insufficient_funds",
		message: "requested amount exceeds the withdrawable balance",
	},
	{
		errs:   []error{payoutdomain.ErrInvalidTransition, referraldomain.ErrAlreadyReferred},
		status: http.StatusConflict,
		kind:   "conflict",
	},
	{
		errs: []error{
			accountdomain.ErrNotFound,
			payoutdomain.ErrNotFound,
			payoutdomain.ErrAccountNotFound,
			referraldomain.ErrNotFound,
			referraldomain.ErrReferrerNotFound,
			referraldomain.ErrAccountNotFound,
			gorm.ErrRecordNotFound,
		},
		status:  http.StatusNotFound,
		kind:    "not_found",
		message: "not found",
	},
	{
		errs:    []error{ErrServiceUnavailable, referraldomain.ErrInviteUnavailable},
		status:  http.StatusServiceUnavailable,
		kind:    "service_unavailable",
		message: "service unavailable",
	},
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
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

func mapError(err error) (int, errorPayload) {
	internal := errorPayload{Type: "internal_error", Message: "internal server error"}
	if err == nil {
		return http.StatusInternalServerError, internal
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	for _, rule := range fieldRules {
		if errors.Is(err, rule.err) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{{Field: rule.field, Code: rule.err.Error(), Message: rule.message}},
			}
		}
	}

	for _, rule := range statusRules {
		for _, target := range rule.errs {
			if !errors.Is(err, target) {
				continue
			}
			message := rule.message
			if message == "" {
				message = target.Error()
			}
			return rule.status, errorPayload{Type: rule.kind, Message: message}
		}
	}

	return http.StatusInternalServerError, internal
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, metrics.ClassifyErrorReason(err)
	}
	return payload.Type, err.Error()
}
