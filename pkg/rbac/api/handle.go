package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-rbac/pkg/errors"
	"github.com/tendant/simple-rbac/pkg/rbac"
)

// RequesterHeader carries the pre-authenticated requester identity.
// Authentication itself happens outside this service; the header value is
// trusted as-is.
const RequesterHeader = "X-Requester-ID"

type Handle struct {
	rbacService *rbac.RbacService
}

func NewHandle(rbacService *rbac.RbacService) Handle {
	return Handle{
		rbacService: rbacService,
	}
}

// ErrorResponse is the JSON body returned for every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Get a list of roles
// (GET /roles)
func (h Handle) GetRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.rbacService.FindRoles(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, roles)
}

// Create a new role
// (POST /roles)
func (h Handle) PostRoles(w http.ResponseWriter, r *http.Request) {
	var payload rbac.RoleCreate
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		renderError(w, r, errors.InvalidInput("request body", "malformed JSON"))
		return
	}

	role, err := h.rbacService.CreateRole(r.Context(), payload)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, role)
}

// Get the users visible to the requester
// (GET /users)
func (h Handle) GetUsers(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := requesterID(w, r)
	if !ok {
		return
	}

	users, err := h.rbacService.FindUsers(r.Context(), requesterID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, users)
}

// Create a new user
// (POST /users)
func (h Handle) PostUsers(w http.ResponseWriter, r *http.Request) {
	var payload rbac.UserCreate
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		renderError(w, r, errors.InvalidInput("request body", "malformed JSON"))
		return
	}

	user, err := h.rbacService.CreateUser(r.Context(), payload)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, user)
}

// Get user details by id, permission-scoped
// (GET /users/{id})
func (h Handle) GetUsersID(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterID(w, r)
	if !ok {
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, errors.InvalidInput("user id", "must be a UUID"))
		return
	}

	user, err := h.rbacService.GetUser(r.Context(), requester, userID)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

// Get the requester's aggregated menu list
// (GET /me/menus)
func (h Handle) GetMyMenus(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterID(w, r)
	if !ok {
		return
	}

	menus, err := h.rbacService.ListMyMenus(r.Context(), requester)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, struct {
		Menus []string `json:"menus"`
	}{Menus: menus})
}

// Routes mounts the RBAC endpoints on the given router
func Routes(r chi.Router, handle Handle) {
	r.Get("/roles", handle.GetRoles)
	r.Post("/roles", handle.PostRoles)
	r.Get("/users", handle.GetUsers)
	r.Post("/users", handle.PostUsers)
	r.Get("/users/{id}", handle.GetUsersID)
	r.Get("/me/menus", handle.GetMyMenus)
}

// requesterID extracts the trusted requester identity from the request
// header, rendering a 400 when it is missing or malformed
func requesterID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(RequesterHeader)
	if raw == "" {
		renderError(w, r, errors.InvalidInput(RequesterHeader, "header is required"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		renderError(w, r, errors.InvalidInput(RequesterHeader, "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// renderError maps a service error onto an HTTP status and JSON body
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := errors.MapErrorCodeToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "err", err, "path", r.URL.Path)
	}

	message := err.Error()
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		message = structured.Message
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{
		Code:    string(code),
		Message: message,
	})
}
