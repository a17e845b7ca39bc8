package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"hometracker.app/internal/audit"
	"hometracker.app/internal/auth"
	"hometracker.app/internal/ids"
)

type registerRequest struct {
	LastName    string     `json:"lastName"`
	FirstName   string     `json:"firstName"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	RoleID      int        `json:"roleId"`
	Username    string     `json:"username"`
	Phone       string     `json:"phone"`
	BirthDate   *time.Time `json:"birthDate"`
	Description string     `json:"description"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type updateUserRequest struct {
	LastName    *string    `json:"lastName"`
	FirstName   *string    `json:"firstName"`
	Email       *string    `json:"email"`
	Username    *string    `json:"username"`
	Phone       *string    `json:"phone"`
	BirthDate   *time.Time `json:"birthDate"`
	Description *string    `json:"description"`
	HouseID     *int64     `json:"houseId"`
}

// sessionView flattens the profile and its token into one object.
type sessionView struct {
	auth.Profile
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type tokenView struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newSessionView(s auth.Session) sessionView {
	return sessionView{Profile: s.Profile, Token: s.Token.Value, ExpiresAt: s.Token.ExpiresAt}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.auth.Register(r.Context(), auth.Registration{
		LastName:    req.LastName,
		FirstName:   req.FirstName,
		Email:       req.Email,
		Password:    req.Password,
		RoleID:      req.RoleID,
		Username:    req.Username,
		Phone:       req.Phone,
		BirthDate:   req.BirthDate,
		Description: req.Description,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.registered", map[string]any{
		"user_id": session.Profile.ID,
		"role_id": session.Profile.RoleID,
	})
	w.Header().Set("Location", fmt.Sprintf("/api/users/%s", session.Profile.ID))
	writeData(w, r, http.StatusCreated, "account created", newSessionView(session))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = audit.LogEvent(r.Context(), "user.login.failed", map[string]any{
				"remote_ip": clientIP(r),
			})
		}
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.login", map[string]any{
		"user_id": session.Profile.ID,
	})
	writeData(w, r, http.StatusOK, "authenticated", newSessionView(session))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())
	next, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "token refreshed", tokenView{Token: next.Value, ExpiresAt: next.ExpiresAt})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	profile, err := a.auth.Profile(r.Context(), id.UserID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "", profile)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	if err := a.auth.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.password.changed", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	profiles, err := a.auth.ListProfiles(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []auth.Profile{}
	}
	writeData(w, r, http.StatusOK, "", profiles)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	target, ok := a.manageableTarget(w, r)
	if !ok {
		return
	}
	profile, err := a.auth.Profile(r.Context(), target)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, "", profile)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	target, ok := a.manageableTarget(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := a.auth.UpdateProfile(r.Context(), target, auth.ProfileUpdate{
		LastName:    req.LastName,
		FirstName:   req.FirstName,
		Email:       req.Email,
		Username:    req.Username,
		Phone:       req.Phone,
		BirthDate:   req.BirthDate,
		Description: req.Description,
		HouseID:     req.HouseID,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{"target_id": target})
	writeData(w, r, http.StatusOK, "profile updated", profile)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	target := mux.Vars(r)["id"]
	if !ids.Valid(target) {
		handleAuthError(w, r, auth.ErrNotFound)
		return
	}
	if err := a.auth.DeleteAccount(r.Context(), target); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{"target_id": target})
	w.WriteHeader(http.StatusNoContent)
}

// manageableTarget resolves {id} and checks the caller may act on it.
// Malformed ids are reported as missing without touching the store.
func (a *API) manageableTarget(w http.ResponseWriter, r *http.Request) (string, bool) {
	target := mux.Vars(r)["id"]
	if !ids.Valid(target) {
		handleAuthError(w, r, auth.ErrNotFound)
		return "", false
	}
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrAuthenticationRequired)
		return "", false
	}
	if !id.CanManage(target) {
		handleAuthError(w, r, auth.ErrForbidden)
		return "", false
	}
	return target, true
}
