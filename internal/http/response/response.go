package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps engine error kinds onto HTTP statuses. Anything
// without a kind is an infrastructure failure and is reported as a 500.
func RespondServiceError(c *gin.Context, err error) {
	kind := domainagg.KindOf(err)
	if kind == "" {
		RespondError(c, http.StatusInternalServerError, "INTERNAL", err)
		return
	}
	RespondError(c, StatusForKind(kind), string(kind), err)
}

func StatusForKind(kind domainagg.ErrorKind) int {
	switch kind {
	case domainagg.KindInvalidArgument:
		return http.StatusBadRequest
	case domainagg.KindSessionNotFound, domainagg.KindProductNotFound, domainagg.KindNotFound:
		return http.StatusNotFound
	case domainagg.KindSessionNotOpen, domainagg.KindInvalidTransition, domainagg.KindDuplicateInSession:
		return http.StatusConflict
	case domainagg.KindPartialCycle, domainagg.KindMissingParents, domainagg.KindPackageShortfall,
		domainagg.KindWrongType, domainagg.KindAlreadyConfigured, domainagg.KindLimitReached:
		return http.StatusUnprocessableEntity
	case domainagg.KindInconsistentState:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
