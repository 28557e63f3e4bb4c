package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type quotaError struct{}

func (quotaError) Error() string { return "quota" }

func (quotaError) APIError() *Error { return TooManyRequests("quota exceeded") }

func TestFrom(t *testing.T) {
	conflict := Conflict("taken")
	assert.Same(t, conflict, From(fmt.Errorf("signup: %w", conflict)))

	got := From(fmt.Errorf("wrapped: %w", quotaError{}))
	assert.Equal(t, http.StatusTooManyRequests, got.StatusCode)
	assert.Equal(t, "quota exceeded", got.Message)

	got = From(errors.New("dial tcp 10.0.0.1:5432: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
	assert.NotContains(t, got.Message, "10.0.0.1")

	assert.Equal(t, http.StatusInternalServerError, From(nil).StatusCode)
}

func TestRemoteFailure(t *testing.T) {
	err := RemoteFailure("load posts")
	assert.Equal(t, http.StatusServiceUnavailable, err.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", err.Code)
	assert.Equal(t, "failed to load posts, please try again", err.Message)
	assert.JSONEq(t, `{"success":false,"error":{"code":"SERVICE_UNAVAILABLE","message":"failed to load posts, please try again"}}`, string(err.ToJSON()))
}
