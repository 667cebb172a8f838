package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"rememberme/api/internal/apperr"
	"rememberme/api/internal/auth"
	"rememberme/api/internal/avatar"
	"rememberme/api/internal/metrics"
	"rememberme/api/internal/rounds"
	"rememberme/api/internal/validate"
)

const (
	maxBodyBytes       = 64 << 10
	sessionTokenHeader = "X-Session-Token"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	engine := s.service.Rounds()

	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, string(apperr.KindNotFound), "Not Found", "No such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, string(apperr.KindInvalidArgument), "Bad Request", "Method not allowed")
	})

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/api/ready", s.handleReady)
	r.Handle("/api/metrics", metrics.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/anonymous", s.handleAnonymous)
		r.Post("/provision", s.handleProvision)
		r.Post("/session-token", s.handleSessionToken)
	})

	r.Route("/api/rounds", func(r chi.Router) {
		r.Get("/", s.handleListRounds)
		r.Get("/{roundId}", s.handleGetRound)
		r.Get("/{roundId}/today/{day}", s.handleGetToday)

		r.Post("/save-round", mutation(s, validate.DecodeSaveRound, engine.SaveRound))
		r.Post("/delete-round", mutation(s, validate.DecodeDeleteRound, engine.DeleteRound))
		r.Post("/save-task", mutation(s, validate.DecodeSaveTask, engine.SaveTask))
		r.Post("/delete-task", mutation(s, validate.DecodeDeleteTask, engine.DeleteTask))
		r.Post("/set-rounds-order", mutation(s, validate.DecodeSetRoundsOrder, engine.SetRoundsOrder))
		r.Post("/set-times-of-day-order", mutation(s, validate.DecodeSetTimesOfDayOrder, engine.SetTimesOfDayOrder))
		r.Post("/set-progress", mutation(s, validate.DecodeSetProgress, engine.SetProgress))
		r.Post("/reset-today", mutation(s, validate.DecodeResetToday, engine.ResetToday))
	})

	r.Route("/api/users/me", func(r chi.Router) {
		r.Get("/", s.handleProfile)
		r.Delete("/", s.handleDeleteUser)
		r.Put("/profile-image", s.handleSetProfileImage)
		r.Delete("/profile-image", s.handleDeleteProfileImage)
	})
	return r
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"docstore": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["docstore"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	provisioned, err := s.service.SignInAnonymously(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, provisioned)
}

func (s *HTTPServer) handleProvision(w http.ResponseWriter, r *http.Request) {
	identity, err := s.service.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	provisioned, err := s.service.Provision(r.Context(), identity)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, provisioned)
}

func (s *HTTPServer) handleSessionToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.service.SessionToken(r.Context(), bearerToken(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionToken": token})
}

// mutation adapts a validated engine operation to an authenticated POST.
func mutation[T any](s *HTTPServer, decode func([]byte) (T, error), op func(context.Context, rounds.Caller, T) (rounds.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		raw, err := readBody(w, r, maxBodyBytes)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		req, err := decode(raw)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		session, ok := s.resolve(w, r, identity)
		if !ok {
			return
		}
		res, err := op(r.Context(), session.Caller, req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *HTTPServer) handleListRounds(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	list, err := s.service.Rounds().ListRounds(r.Context(), session.Caller)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": list})
}

func (s *HTTPServer) handleGetRound(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "roundId")
	if err := validate.RoundID(roundID); err != nil {
		writeAppError(w, r, err)
		return
	}
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	detail, err := s.service.Rounds().GetRound(r.Context(), session.Caller, roundID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleGetToday(w http.ResponseWriter, r *http.Request) {
	roundID, day := chi.URLParam(r, "roundId"), chi.URLParam(r, "day")
	if err := validate.RoundID(roundID); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := validate.Day(day); err != nil {
		writeAppError(w, r, err)
		return
	}
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	view, err := s.service.Rounds().GetToday(r.Context(), session.Caller, roundID, day)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	profile, err := s.service.Rounds().Profile(r.Context(), session.Caller)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if err := s.service.DeleteUser(r.Context(), session); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"details": "Your account has been deleted"})
}

func (s *HTTPServer) handleSetProfileImage(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	data, err := readBody(w, r, avatar.MaxSize)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if _, err := avatar.Detect(data); err != nil {
		writeAppError(w, r, err)
		return
	}
	session, ok := s.resolve(w, r, identity)
	if !ok {
		return
	}
	res, err := s.service.SetProfileImage(r.Context(), session, data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleDeleteProfileImage(w http.ResponseWriter, r *http.Request) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	res, err := s.service.DeleteProfileImage(r.Context(), session)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// requireSession authenticates the request and recovers the caller's key.
func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	identity, ok := s.authenticate(w, r)
	if !ok {
		return Session{}, false
	}
	return s.resolve(w, r, identity)
}

func (s *HTTPServer) authenticate(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, err := s.service.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		writeAppError(w, r, err)
		return auth.Identity{}, false
	}
	return identity, true
}

// resolve forwards a freshly minted session token to the client.
func (s *HTTPServer) resolve(w http.ResponseWriter, r *http.Request, identity auth.Identity) (Session, bool) {
	session, err := s.service.Resolve(r.Context(), identity)
	if err != nil {
		writeAppError(w, r, err)
		return Session{}, false
	}
	if session.Token != "" {
		w.Header().Set(sessionTokenHeader, session.Token)
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writeJSON(writer, http.StatusNoContent, map[string]any{})
		} else {
			next.ServeHTTP(writer, r)
		}

		log.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID, "+sessionTokenHeader)
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, apperr.Invalid("missing body")
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Invalid("body exceeds %d bytes", limit)
		}
		return nil, apperr.Invalid("read body: %v", err)
	}
	return raw, nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
