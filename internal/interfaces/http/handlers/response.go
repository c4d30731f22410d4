package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// SendError writes err with the status of its taxonomy entry. Causes are never
// exposed to the client.
func SendError(c *gin.Context, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.ErrInternal("unexpected error")
	}
	if appErr.Retryable() {
		c.Header("Retry-After", "1")
	}
	c.JSON(appErr.HTTPStatus(), ErrorResponse{
		Error:            string(appErr.Code()),
		ErrorDescription: appErr.Description(),
	})
}

func isCode(err error, code constants.ErrorCode) bool {
	return errors.CodeOf(err) == code
}
