package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kalambet/podio/internal/storage"
	"github.com/kalambet/podio/internal/user"
)

const createdOnLayout = "2006-01-02 15:04:05"

type userUpdateRequest struct {
	Locale      string `json:"locale" validate:"omitempty,min=2,max=12"`
	Timezone    string `json:"timezone" validate:"omitempty,timezone"`
	Mail        string `json:"mail" validate:"omitempty,email"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" validate:"omitempty,min=6,max=72"`
}

func toUser(a storage.Account) user.User {
	return user.User{
		UserID:    a.UserID,
		Mail:      a.Mail,
		Status:    a.Status,
		Locale:    a.Locale,
		Timezone:  a.Timezone,
		CreatedOn: a.CreatedAt.UTC().Format(createdOnLayout),
		Mails:     []user.Mail{{Mail: a.Mail, Verified: true, Primary: true}},
	}
}

// currentAccount loads the account the request's token was issued for and
// writes the error response when that fails.
func (s *sandbox) currentAccount(w http.ResponseWriter, r *http.Request) (storage.Account, bool) {
	acct, err := s.store.GetAccount(claimsFrom(r.Context()).UserID)
	if errors.Is(err, storage.ErrNotFound) {
		s.httpError(w, http.StatusNotFound, "not_found", "user not found")
		return storage.Account{}, false
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to load user: %v", err)
		return storage.Account{}, false
	}
	return acct, true
}

func (s *sandbox) handleGetUser(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, toUser(acct))
}

func (s *sandbox) handleGetUserByMail(w http.ResponseWriter, r *http.Request) {
	mail := pathParam(r, "mail")
	acct, err := s.store.GetAccountByMail(mail)
	if errors.Is(err, storage.ErrNotFound) {
		s.httpError(w, http.StatusNotFound, "not_found", "no user with mail %s", mail)
		return
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to load user: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toUser(acct))
}

func (s *sandbox) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req userUpdateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid_value", "invalid request body: %v", err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid_value", "%s", validationMessage(err))
		return
	}

	acct, ok := s.currentAccount(w, r)
	if !ok {
		return
	}

	mailChange := req.Mail != "" && !strings.EqualFold(req.Mail, acct.Mail)
	if mailChange || req.NewPassword != "" {
		if req.OldPassword == "" ||
			bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.OldPassword)) != nil {
			s.httpError(w, http.StatusForbidden, "forbidden", "old_password is missing or does not match")
			return
		}
	}

	if req.Locale != "" {
		acct.Locale = req.Locale
	}
	if req.Timezone != "" {
		acct.Timezone = req.Timezone
	}
	if mailChange {
		acct.Mail = req.Mail
	}
	if req.NewPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			s.httpError(w, http.StatusInternalServerError, "server_error", "failed to hash password: %v", err)
			return
		}
		acct.PasswordHash = string(hash)
	}

	err := s.store.UpdateAccount(acct)
	if errors.Is(err, storage.ErrDuplicate) {
		s.httpError(w, http.StatusConflict, "conflict", "mail %s is already in use", acct.Mail)
		return
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to update user: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func (s *sandbox) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.currentAccount(w, r)
	if !ok {
		return
	}
	claims := claimsFrom(r.Context())

	rec, err := s.store.GetProfile(acct.UserID)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to load profile: %v", err)
		return
	}
	profile, err := profileFromRecord(rec)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to build profile: %v", err)
		return
	}
	props, err := s.store.ListProperties(acct.UserID, claims.ClientID)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to load properties: %v", err)
		return
	}

	s.writeJSON(w, http.StatusOK, user.Status{
		User:         toUser(acct),
		Profile:      profile,
		Properties:   props,
		CalendarCode: calendarCode(acct.UserID),
		Mailbox:      fmt.Sprintf("user-%d", acct.UserID),
	})
}

// calendarCode is stable per user so calendar subscriptions survive restarts.
func calendarCode(userID int) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "podio-sandbox/calendar/%d", userID))
	return strings.ReplaceAll(id.String(), "-", "")[:16]
}

func (s *sandbox) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	key := pathParam(r, "key")

	v, err := s.store.GetProperty(claims.UserID, claims.ClientID, key)
	if errors.Is(err, storage.ErrNotFound) {
		s.httpError(w, http.StatusNotFound, "not_found", "property %s not found", key)
		return
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to load property: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, user.PropertyValue{Value: v})
}

func (s *sandbox) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var body struct {
		Value *bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid_value", "invalid request body: %v", err)
		return
	}
	if body.Value == nil {
		s.httpError(w, http.StatusBadRequest, "invalid_value", "value is required")
		return
	}

	claims := claimsFrom(r.Context())
	if err := s.store.SetProperty(claims.UserID, claims.ClientID, pathParam(r, "key"), *body.Value); err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to store property: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *sandbox) handleDeleteProperty(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	key := pathParam(r, "key")

	err := s.store.DeleteProperty(claims.UserID, claims.ClientID, key)
	if errors.Is(err, storage.ErrNotFound) {
		s.httpError(w, http.StatusNotFound, "not_found", "property %s not found", key)
		return
	}
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to delete property: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
