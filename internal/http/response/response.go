package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
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

// RespondAPIError renders err with the status and code resolved by apierr.
// Internal errors are not echoed to the client.
func RespondAPIError(c *gin.Context, err error) {
	status, code := apierr.Resolve(err)
	if status >= http.StatusInternalServerError && apierr.Code(err) == "" {
		_ = c.Error(err)
		c.JSON(status, ErrorEnvelope{Error: APIError{Message: "internal error", Code: code}})
		return
	}
	RespondError(c, status, code, err)
}

// AbortAPIError is RespondAPIError for middleware.
func AbortAPIError(c *gin.Context, err error) {
	RespondAPIError(c, err)
	c.Abort()
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
