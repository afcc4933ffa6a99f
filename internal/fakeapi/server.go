package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/dgnsrekt/outingsync/internal/activity"
	"github.com/dgnsrekt/outingsync/internal/api"
	"github.com/dgnsrekt/outingsync/internal/config"
)

type ctxKey struct{}

var validate = validator.New()

type commentRequest struct {
	Comment struct {
		Content string `json:"content" validate:"required,max=4000"`
	} `json:"comment"`
}

// Server serves the backend REST surface from a Store.
type Server struct {
	store  *Store
	users  map[string]api.User // token -> user
	config *config.FakeAPIConfig
	logger *zap.Logger
	// failWrite decides whether a write is answered with a 500.
	failWrite func() bool
}

// NewServer creates a server for store, authenticating the users in cfg.
func NewServer(store *Store, cfg *config.FakeAPIConfig, logger *zap.Logger) *Server {
	users := make(map[string]api.User, len(cfg.Users))
	for _, u := range cfg.Users {
		users[u.Token] = api.User{ID: u.ID, Name: u.Name}
	}
	failRate := cfg.FailRate
	return &Server{
		store:     store,
		users:     users,
		config:    cfg,
		logger:    logger,
		failWrite: func() bool { return failRate > 0 && rand.Float64() < failRate },
	}
}

// Seed creates the configured activity, owned by the first user.
func (s *Server) Seed() api.Activity {
	owner := api.User{ID: s.config.Users[0].ID, Name: s.config.Users[0].Name}
	return s.store.CreateActivity(s.config.ActivityID, s.config.Title, owner)
}

// NewRouter builds the HTTP handler.
func NewRouter(server *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapLoggerMiddleware(logger))
	if server.config.Latency > 0 {
		r.Use(latencyMiddleware(server.config.Latency))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Group(func(apiRouter chi.Router) {
		apiRouter.Use(server.authMiddleware)

		apiRouter.Get("/activities/{id}", server.getActivity)
		apiRouter.With(server.chaosMiddleware).Patch("/activities/{id}", server.patchActivity)
		apiRouter.Get("/activities/{id}/comments", server.listComments)
		apiRouter.With(server.chaosMiddleware).Post("/activities/{id}/comments", server.createComment)
	})

	if !server.config.Gzip {
		return r
	}
	return gzhttp.GzipHandler(r)
}

func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(w, r)
	if !ok {
		return
	}

	a, err := s.store.Activity(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) patchActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(w, r)
	if !ok {
		return
	}

	var patch api.ActivityPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := s.store.UpdateActivity(id, patch)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.logger.Debug("activity updated",
		zap.Int64("id", id),
		zap.Int64("by", userFrom(r.Context()).ID),
	)
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(w, r)
	if !ok {
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = t
	}

	comments, err := s.store.Comments(id, since)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(w, r)
	if !ok {
		return
	}

	var body commentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validate.Struct(body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c, err := s.store.AddComment(id, userFrom(r.Context()), body.Comment.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		user, known := s.users[strings.TrimSpace(token)]
		if !ok || !known {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

func (s *Server) chaosMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.failWrite() {
			s.logger.Debug("injecting write failure", zap.String("path", r.URL.Path))
			writeError(w, http.StatusInternalServerError, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func latencyMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("auth", maskToken(r.Header.Get("Authorization"))),
			)
			next.ServeHTTP(w, r)
		})
	}
}

// maskToken keeps the scheme and the first characters of a bearer token.
func maskToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	if len(token) > 4 {
		token = token[:4] + "****"
	}
	return "Bearer " + token
}

func userFrom(ctx context.Context) api.User {
	u, _ := ctx.Value(ctxKey{}).(api.User)
	return u
}

func activityID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid activity id")
		return 0, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrActivityNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmptyContent),
		errors.Is(err, activity.ErrImpossibleFlags),
		errors.Is(err, activity.ErrIllegalTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
