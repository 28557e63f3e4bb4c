package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"mnemosyne-api/internal/model"
	"mnemosyne-api/internal/service"
	"mnemosyne-api/internal/session"
	"mnemosyne-api/pkg/apierror"
	"mnemosyne-api/pkg/response"

	"github.com/dustin/go-humanize"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// writeError maps service errors to API errors. Sentinels are matched
// here; errors carrying their own API form go through apierror.From.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		response.Error(w, apierror.Unauthorized(""))
	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrRevoked),
		errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, apierror.Unauthorized(sentinelMessage(err)))
	case errors.Is(err, service.ErrForbidden):
		response.Error(w, apierror.Forbidden(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		response.Error(w, apierror.NotFound(""))
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrDeleteNotApplied):
		response.Error(w, apierror.Conflict(err.Error()))
	default:
		response.Error(w, apierror.From(err))
	}
}

// sentinelMessage drops wrapping context so internals stay out of responses.
func sentinelMessage(err error) string {
	for _, s := range []error{session.ErrInvalidToken, session.ErrRevoked, service.ErrInvalidCredentials} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return false
	}
	return true
}

func forceParam(r *http.Request) bool {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	return force
}

// PostView is a post as rendered to clients.
type PostView struct {
	model.Post
	CreatedAgo string `json:"created_ago"`
}

func postView(p model.Post) PostView {
	return PostView{Post: p, CreatedAgo: humanize.RelTime(p.CreatedAt, now(), "ago", "from now")}
}

func postViews(posts []model.Post) []PostView {
	out := make([]PostView, len(posts))
	for i, p := range posts {
		out[i] = postView(p)
	}
	return out
}

// now is swapped in tests.
var now = time.Now

func toResource[T any](res service.Result[T], view func(T) interface{}) response.Resource {
	out := response.Resource{
		IsStale:      res.Stale,
		Revalidating: res.Revalidating,
	}
	if res.Found {
		out.Value = view(res.Value)
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func setCacheHeader[T any](w http.ResponseWriter, res service.Result[T]) {
	if res.Stale {
		w.Header().Set("X-Cache", "STALE")
	} else {
		w.Header().Set("X-Cache", "FRESH")
	}
}

// writeResource renders a cached read. A read with nothing to show is an
// error response; anything else is 200 with the error carried alongside.
func writeResource[T any](w http.ResponseWriter, res service.Result[T], view func(T) interface{}) {
	if !res.Found {
		writeError(w, res.Err)
		return
	}
	setCacheHeader(w, res)
	response.OK(w, toResource(res, view))
}

func writePosts(w http.ResponseWriter, res service.Result[[]model.Post]) {
	if !res.Found {
		writeError(w, res.Err)
		return
	}
	setCacheHeader(w, res)
	response.JSONWithMeta(w, http.StatusOK, toResource(res, renderPosts), len(res.Value))
}
