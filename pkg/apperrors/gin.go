package apperrors

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// Respond writes err as the standard JSON error body
func Respond(c *gin.Context, err error) {
	c.JSON(HTTPStatus(err), gin.H{"error": err.Error(), "code": Code(err)})
}

// RespondInvalid writes a malformed body, path or query value as INVALID_ARGUMENT
func RespondInvalid(c *gin.Context, err error) {
	Respond(c, fmt.Errorf("%s: %w", err.Error(), ErrInvalidArgument))
}
