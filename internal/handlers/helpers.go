package handlers

import (
	"errors"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"taskhub/internal/metrics"
	"taskhub/internal/middleware"
	"taskhub/internal/services"
)

type errorResponse struct {
	Code    services.Kind     `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation,
		services.KindDuplicateEmail,
		services.KindInvalidCredentials,
		services.KindEmailNotVerified,
		services.KindAlreadyVerified,
		services.KindResetAlreadyRequested,
		services.KindPasswordMismatch:
		return http.StatusBadRequest
	case services.KindUnauthorized, services.KindTokenExpired:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindUserNotFound, services.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error to its status. The internal cause is
// attached to the gin context for the access log and never sent.
func writeError(c *gin.Context, op string, err error) {
	kind := services.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	if op != "" {
		metrics.AuthEvents.WithLabelValues(op, string(kind)).Inc()
	}
	c.JSON(status, errorResponse{Code: kind, Message: services.PublicMessage(err)})
}

// writeBindError reports binding failures per JSON field without echoing
// validator output.
func writeBindError(c *gin.Context, err error) {
	resp := errorResponse{Code: services.KindValidation, Message: "Invalid request body"}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		resp.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[jsonFieldName(fe.Field())] = fieldMessage(fe)
		}
		first := verrs[0]
		resp.Message = jsonFieldName(first.Field()) + ": " + fieldMessage(first)
	}
	c.JSON(http.StatusBadRequest, resp)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "hexcolor":
		return "must be a hex color"
	default:
		return "is invalid"
	}
}

// jsonFieldName maps a Go field name to the camelCase key used in request bodies.
func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	r, size := utf8.DecodeRuneInString(field)
	return string(unicode.ToLower(r)) + field[size:]
}

func recordOK(op string) {
	metrics.AuthEvents.WithLabelValues(op, metrics.OutcomeOK).Inc()
}

func currentUserID(c *gin.Context) (string, bool) {
	u, ok := middleware.CurrentUser(c)
	if !ok || u.ID == "" {
		return "", false
	}
	return u.ID, true
}
