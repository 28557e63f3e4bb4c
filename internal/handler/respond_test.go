package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/service"
	"mnemosyne-api/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &service.ValidationError{Field: "heading", Message: "is required"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthenticated", service.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"invalid token", fmt.Errorf("parse: %w", session.ErrInvalidToken), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"revoked", session.ErrRevoked, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"not found", fmt.Errorf("load: %w", service.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"email taken", service.ErrEmailTaken, http.StatusConflict, "CONFLICT"},
		{"delete not applied", service.ErrDeleteNotApplied, http.StatusConflict, "CONFLICT"},
		{"remote", &service.RemoteError{Op: "load posts", Err: errors.New("dial tcp")}, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestWriteError_DetailsAndMessages(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, &service.ValidationError{Field: "mode", Message: "must be online or offline"})

	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Error.Details, 1)
	assert.Equal(t, "mode", body.Error.Details[0].Field)

	w = httptest.NewRecorder()
	writeError(w, &service.RemoteError{Op: "delete post", Err: errors.New("i/o timeout")})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "failed to delete post, please try again", body.Error.Message)
}

type resourceBody struct {
	Success bool `json:"success"`
	Data    struct {
		Value        json.RawMessage `json:"value"`
		IsStale      bool            `json:"is_stale"`
		Revalidating bool            `json:"revalidating"`
		Error        string          `json:"error"`
	} `json:"data"`
	Meta *struct {
		Total int `json:"total"`
	} `json:"meta"`
}

func TestWriteResource_StaleWithError(t *testing.T) {
	w := httptest.NewRecorder()
	writeResource(w, service.Result[model.Profile]{
		Value: model.Profile{ID: "u1", Name: "Ada"},
		Found: true,
		Stale: true,
		Err:   &service.RemoteError{Op: "load profile", Err: errors.New("down")},
	}, renderProfile)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "STALE", w.Header().Get("X-Cache"))

	var body resourceBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.IsStale)
	assert.Equal(t, "failed to load profile, please try again", body.Data.Error)
	assert.Contains(t, string(body.Data.Value), `"name":"Ada"`)
}

func TestWriteResource_NothingToShow(t *testing.T) {
	w := httptest.NewRecorder()
	writeResource(w, service.Result[model.Profile]{Err: service.ErrNotFound}, renderProfile)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWritePosts_MetaAndAge(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	w := httptest.NewRecorder()
	writePosts(w, service.Result[[]model.Post]{
		Value: []model.Post{
			{ID: "p1", CreatedAt: fixed.Add(-2 * time.Hour)},
			{ID: "p2", CreatedAt: fixed.Add(-3 * 24 * time.Hour)},
		},
		Found:        true,
		Revalidating: true,
	})

	assert.Equal(t, "FRESH", w.Header().Get("X-Cache"))
	var body resourceBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Meta)
	assert.Equal(t, 2, body.Meta.Total)
	assert.True(t, body.Data.Revalidating)

	var posts []PostView
	require.NoError(t, json.Unmarshal(body.Data.Value, &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, "2 hours ago", posts[0].CreatedAgo)
	assert.Equal(t, "3 days ago", posts[1].CreatedAgo)
}
