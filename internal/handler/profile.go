package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/service"
	"mnemosyne-api/internal/session"
	"mnemosyne-api/pkg/apierror"
	"mnemosyne-api/pkg/response"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
)

// avatarField is the multipart form field carrying the image.
const avatarField = "avatar"

// ProfileHandler serves profiles and the signed-in user's own page.
type ProfileHandler struct {
	data *service.DataService
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(data *service.DataService) *ProfileHandler {
	return &ProfileHandler{data: data}
}

func renderProfile(p model.Profile) interface{} { return p }

func renderPublicProfile(p model.Profile) interface{} { return p.Public() }

// Get handles GET /api/v1/users/{userID}/profile. Only the owner sees the
// email address.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	render := renderPublicProfile
	if viewer, ok := session.IdentityFromContext(r.Context()); ok && viewer.UserID == userID {
		render = renderProfile
	}
	writeResource(w, h.data.FetchProfile(r.Context(), userID, forceParam(r)), render)
}

// DashboardResponse is the signed-in user's own page.
type DashboardResponse struct {
	Profile response.Resource `json:"profile"`
	Posts   response.Resource `json:"posts"`
}

// Me handles GET /api/v1/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	d, err := h.data.Dashboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, DashboardResponse{
		Profile: toResource(d.Profile, renderProfile),
		Posts:   toResource(d.Posts, renderPosts),
	})
}

// UpdateMe handles PUT /api/v1/me
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req model.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.data.UpdateProfile(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, p)
}

// UploadAvatar handles PUT /api/v1/me/avatar
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	tooLarge := apierror.PayloadTooLarge(fmt.Sprintf("avatar must be at most %s", humanize.IBytes(service.MaxAvatarSize)))

	// Room for the multipart envelope around the image.
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAvatarSize+64<<10)
	if err := r.ParseMultipartForm(service.MaxAvatarSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(w, tooLarge)
			return
		}
		response.Error(w, apierror.BadRequest("expected a multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(avatarField)
	if err != nil {
		response.Error(w, apierror.BadRequest("avatar file is required"))
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, service.MaxAvatarSize+1))
	if err != nil {
		response.Error(w, apierror.BadRequest("could not read avatar"))
		return
	}
	if len(body) > service.MaxAvatarSize {
		response.Error(w, tooLarge)
		return
	}

	p, err := h.data.UploadAvatar(r.Context(), header.Filename, header.Header.Get("Content-Type"), body)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, p)
}
