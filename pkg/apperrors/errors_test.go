package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCodeUnwrapsContext(t *testing.T) {
	err := fmt.Errorf("project 4: %w", ErrAlreadySettled)

	assert.Equal(t, "ALREADY_SETTLED", Code(err))
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
}

func TestCodeUnknownError(t *testing.T) {
	err := errors.New("disk on fire")

	assert.Equal(t, "INTERNAL", Code(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestEveryTagIsDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for _, e := range taxonomy {
		assert.False(t, seen[e.code], "duplicate code %s", e.code)
		seen[e.code] = true
		assert.Equal(t, e.code, Code(e.err))
	}
}

func TestRespondInvalidTagsArgument(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondInvalid(c, errors.New("invalid id"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid id: invalid argument","code":"INVALID_ARGUMENT"}`, w.Body.String())
}
