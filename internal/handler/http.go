package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/service"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type Service interface {
	AuthTelegram(ctx context.Context, telegramID int64, username string) (*service.Session, error)
	CheckMembership(ctx context.Context, telegramID int64) (*service.MembershipStatus, error)
	GetProgress(ctx context.Context, userID uuid.UUID) (*service.UserPayload, error)
	StartLesson(ctx context.Context, userID, lessonID uuid.UUID) (*service.UserPayload, error)
	CompleteLesson(ctx context.Context, userID, lessonID uuid.UUID) (*service.UserPayload, error)
	RestartProgram(ctx context.Context, userID uuid.UUID) (*service.UserPayload, error)
	RefreshAll(ctx context.Context) ([]service.Transition, error)

	ListPrograms(ctx context.Context) ([]*models.ProgramWithCount, error)
	CreateProgram(ctx context.Context, in service.ProgramInput) (*models.Program, error)
	UpdateProgram(ctx context.Context, id uuid.UUID, patch service.ProgramPatch) (*models.Program, error)
	ListLessons(ctx context.Context, programID uuid.UUID) ([]*models.Lesson, error)
	CreateLesson(ctx context.Context, programID uuid.UUID, in service.LessonInput) (*models.Lesson, error)
	UpdateLesson(ctx context.Context, id uuid.UUID, patch service.LessonPatch) (*models.Lesson, error)
	DeleteLesson(ctx context.Context, id uuid.UUID) error
	MoveLesson(ctx context.Context, id uuid.UUID, direction string) ([]*models.Lesson, error)
	GetUpsell(ctx context.Context) (*models.UpsellSettings, error)
	SaveUpsell(ctx context.Context, in service.UpsellInput) (*models.UpsellSettings, error)
	Stats(ctx context.Context) (*models.Stats, error)
	Ping(ctx context.Context) error
}

type Options struct {
	ClientOrigins []string
	AdminPassword string
	SessionSecret string
	SessionMaxAge int
	SecureCookies bool
	// HealthChecks are static configuration checks reported by /api/health.
	HealthChecks map[string]bool
}

type HTTPHandler struct {
	service Service
	store   *sessions.CookieStore
	opts    Options
}

func NewHTTPHandler(svc Service, opts Options) *HTTPHandler {
	store := sessions.NewCookieStore([]byte(opts.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   opts.SessionMaxAge,
		HttpOnly: true,
		Secure:   opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}

	return &HTTPHandler{
		service: svc,
		store:   store,
		opts:    opts,
	}
}

// Router wires every route together with the middleware chain.
func (h *HTTPHandler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger, recoverer, cors(h.opts.ClientOrigins))

	// preflight requests are answered by the cors middleware
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/auth/telegram", h.handleAuthTelegram).Methods(http.MethodPost)
	api.HandleFunc("/check-membership", h.handleCheckMembership).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/programs/active", h.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/progress", h.handleProgress).Methods(http.MethodGet)
	api.HandleFunc("/lessons/{id}/start", h.handleStartLesson).Methods(http.MethodPost)
	api.HandleFunc("/lessons/{id}/complete", h.handleCompleteLesson).Methods(http.MethodPost)
	api.HandleFunc("/restart-program", h.handleRestartProgram).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/login", h.handleAdminLogin).Methods(http.MethodPost)
	admin.HandleFunc("/logout", h.requireAdmin(h.handleAdminLogout)).Methods(http.MethodPost)
	admin.HandleFunc("/me", h.requireAdmin(h.handleAdminMe)).Methods(http.MethodGet)
	admin.HandleFunc("/programs", h.requireAdmin(h.handleListPrograms)).Methods(http.MethodGet)
	admin.HandleFunc("/programs", h.requireAdmin(h.handleCreateProgram)).Methods(http.MethodPost)
	admin.HandleFunc("/programs/{id}", h.requireAdmin(h.handleUpdateProgram)).Methods(http.MethodPut)
	admin.HandleFunc("/programs/{id}/lessons", h.requireAdmin(h.handleListLessons)).Methods(http.MethodGet)
	admin.HandleFunc("/programs/{id}/lessons", h.requireAdmin(h.handleCreateLesson)).Methods(http.MethodPost)
	admin.HandleFunc("/lessons/{id}", h.requireAdmin(h.handleUpdateLesson)).Methods(http.MethodPut)
	admin.HandleFunc("/lessons/{id}", h.requireAdmin(h.handleDeleteLesson)).Methods(http.MethodDelete)
	admin.HandleFunc("/lessons/{id}/move", h.requireAdmin(h.handleMoveLesson)).Methods(http.MethodPost)
	admin.HandleFunc("/upsell", h.requireAdmin(h.handleGetUpsell)).Methods(http.MethodGet)
	admin.HandleFunc("/upsell", h.requireAdmin(h.handleSaveUpsell)).Methods(http.MethodPut)
	admin.HandleFunc("/stats", h.requireAdmin(h.handleStats)).Methods(http.MethodGet)

	return r
}

type telegramRequest struct {
	TelegramID telegramID `json:"telegramId"`
	Username   string     `json:"username"`
}

type userRequest struct {
	UserID string `json:"userId"`
}

func (h *HTTPHandler) handleAuthTelegram(w http.ResponseWriter, r *http.Request) {
	var req telegramRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.service.AuthTelegram(r.Context(), int64(req.TelegramID), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newAuthResponse(session))
}

func (h *HTTPHandler) handleCheckMembership(w http.ResponseWriter, r *http.Request) {
	var req telegramRequest
	if r.Method == http.MethodGet {
		id, err := strconv.ParseInt(r.URL.Query().Get("telegramId"), 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: telegramId is required", models.ErrInvalidInput))
			return
		}
		req.TelegramID = telegramID(id)
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	status, err := h.service.CheckMembership(r.Context(), int64(req.TelegramID))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newMembershipResponse(status))
}

func (h *HTTPHandler) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(r.URL.Query().Get("userId"), "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload, err := h.service.GetProgress(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPayloadResponse(payload))
}

func (h *HTTPHandler) handleStartLesson(w http.ResponseWriter, r *http.Request) {
	h.handleLessonOp(w, r, h.service.StartLesson)
}

func (h *HTTPHandler) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	h.handleLessonOp(w, r, h.service.CompleteLesson)
}

func (h *HTTPHandler) handleLessonOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, lessonID uuid.UUID) (*service.UserPayload, error)) {
	lessonID, err := parseID(mux.Vars(r)["id"], "lessonId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID, err := decodeUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload, err := op(r.Context(), userID, lessonID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPayloadResponse(payload))
}

func (h *HTTPHandler) handleRestartProgram(w http.ResponseWriter, r *http.Request) {
	userID, err := decodeUserID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload, err := h.service.RestartProgram(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newPayloadResponse(payload))
}

func decodeUserID(r *http.Request) (uuid.UUID, error) {
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		return uuid.Nil, err
	}
	return parseID(req.UserID, "userId")
}

func parseID(raw, field string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", models.ErrInvalidInput, field)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid id", models.ErrInvalidInput, field)
	}
	return id, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode request body: %v", models.ErrInvalidInput, err)
	}
	return nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are logged and
// reported without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *models.AccessDeniedError

	switch {
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: models.ErrAccessDenied.Error(), Reason: denied.Reason})
	case errors.Is(err, models.ErrAccessDenied):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrNotStarted), errors.Is(err, models.ErrNotAvailable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	default:
		zap.L().Error("request failed", zap.Error(err), zap.String("method", r.Method), zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
