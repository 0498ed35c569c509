package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/kalambet/podio/internal/contact"
	"github.com/kalambet/podio/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SandboxDeps are the collaborators of the sandbox service.
type SandboxDeps struct {
	Store  *storage.Store
	Tokens *TokenIssuer
	Logger *slog.Logger
}

type sandbox struct {
	store    *storage.Store
	tokens   *TokenIssuer
	logger   *slog.Logger
	validate *validator.Validate
}

// NewSandboxHandler returns a local stand-in for the user and contact
// resources of the Podio API, backed by deps.Store.
func NewSandboxHandler(deps SandboxDeps) http.Handler {
	s := &sandbox{
		store:    deps.Store,
		tokens:   deps.Tokens,
		logger:   deps.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/oauth/token", s.handleToken)

	r.Group(func(r chi.Router) {
		r.Use(s.tokenAuth)

		r.Get("/user/", s.handleGetUser)
		r.Put("/user/", s.handleUpdateUser)
		r.Get("/user/status", s.handleGetStatus)
		r.Get("/user/profile/", s.handleGetProfile)
		r.Put("/user/profile/", s.handleUpdateProfile)
		r.Get("/user/profile/{field}", s.handleGetProfileField)
		r.Put("/user/profile/{field}", s.handleUpdateProfileField)
		r.Get("/user/property/{key}", s.handleGetProperty)
		r.Put("/user/property/{key}", s.handleSetProperty)
		r.Delete("/user/property/{key}", s.handleDeleteProperty)
		r.Get("/user/{mail}", s.handleGetUserByMail)

		r.Get("/contact/", s.handleListContacts)
		r.Get("/contact/{profileID}/v2", s.handleGetContact)
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.LogAttrs(r.Context(), slog.LevelInfo, "request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// handleToken implements the password grant of the OAuth token endpoint.
func (s *sandbox) handleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid_request", "invalid form body: %v", err)
		return
	}
	if gt := r.PostForm.Get("grant_type"); gt != "password" {
		s.httpError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type %q is not supported", gt)
		return
	}
	clientID := r.PostForm.Get("client_id")
	if clientID == "" {
		s.httpError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}

	acct, err := s.store.GetAccountByMail(r.PostForm.Get("username"))
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(r.PostForm.Get("password")))
	}
	if err != nil {
		s.httpError(w, http.StatusBadRequest, "invalid_grant", "invalid username or password")
		return
	}

	token, err := s.tokens.Issue(acct.UserID, clientID)
	if err != nil {
		s.httpError(w, http.StatusInternalServerError, "server_error", "failed to issue token: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(s.tokens.TTL().Seconds()),
		"ref":          map[string]any{"type": "user", "id": acct.UserID},
	})
}

// Seed makes sure an account for mail exists and returns it. A new account
// gets password and a profile carrying name and mail.
func Seed(store *storage.Store, mail, password, name string) (storage.Account, error) {
	acct, err := store.GetAccountByMail(mail)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return storage.Account{}, fmt.Errorf("hashing password: %w", err)
	}
	acct, err = store.CreateAccount(storage.Account{Mail: mail, PasswordHash: string(hash)})
	if err != nil {
		return storage.Account{}, err
	}

	nameJSON, err := json.Marshal(name)
	if err != nil {
		return storage.Account{}, err
	}
	mailJSON, err := json.Marshal([]string{mail})
	if err != nil {
		return storage.Account{}, err
	}
	if err := store.UpdateProfileFields(acct.UserID, map[string]json.RawMessage{
		contact.Name.Name(): nameJSON,
		contact.Mail.Name(): mailJSON,
	}, nil); err != nil {
		return storage.Account{}, fmt.Errorf("seeding profile: %w", err)
	}
	return acct, nil
}

// pathParam returns the decoded value of a URL parameter. chi matches on
// RawPath when the request has one, leaving parameters escaped; otherwise
// they come from the already decoded Path.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw
	}
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (s *sandbox) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("writing response", "status", code, "error", err)
	}
}

// httpError writes an error body in the service's format:
// {"error": "<code>", "error_description": "<message>"}.
func (s *sandbox) httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	s.writeJSON(w, code, map[string]any{
		"error":             errType,
		"error_description": fmt.Sprintf(format, args...),
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
