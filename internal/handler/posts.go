package handler

import (
	"net/http"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/service"
	"mnemosyne-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// PostHandler serves the public feed and post writes.
type PostHandler struct {
	data *service.DataService
}

// NewPostHandler creates a new post handler.
func NewPostHandler(data *service.DataService) *PostHandler {
	return &PostHandler{data: data}
}

func renderPosts(posts []model.Post) interface{} {
	return postViews(posts)
}

// List handles GET /api/v1/posts
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	writePosts(w, h.data.FetchPosts(r.Context(), forceParam(r)))
}

// ListByUser handles GET /api/v1/users/{userID}/posts
func (h *PostHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	writePosts(w, h.data.FetchUserPosts(r.Context(), userID, forceParam(r)))
}

// Create handles POST /api/v1/posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft model.PostDraft
	if !decodeJSON(w, r, &draft) {
		return
	}

	post, err := h.data.CreatePost(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, postView(post))
}

// Get handles GET /api/v1/posts/{postID}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	post, err := h.data.GetPost(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, postView(post))
}

// Delete handles DELETE /api/v1/posts/{postID}
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.data.DeletePost(r.Context(), chi.URLParam(r, "postID")); err != nil {
		writeError(w, err)
		return
	}
	response.NoContent(w)
}

// Like handles PUT /api/v1/posts/{postID}/like
func (h *PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	post, err := h.data.LikePost(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, postView(post))
}

// Unlike handles DELETE /api/v1/posts/{postID}/like
func (h *PostHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	post, err := h.data.UnlikePost(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, postView(post))
}
