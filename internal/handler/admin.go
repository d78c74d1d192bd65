package handler

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/service"
	"go.uber.org/zap"
)

const (
	adminSessionName = "admin_session"
	adminKey         = "admin"
	loggedInAtKey    = "logged_in_at"
)

type loginRequest struct {
	Password string `json:"password"`
}

type programRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

type lessonRequest struct {
	Title                  *string            `json:"title"`
	Description            *string            `json:"description"`
	VideoURL               *string            `json:"videoUrl"`
	HomeworkText           *string            `json:"homeworkText"`
	Visibility             *models.Visibility `json:"visibility"`
	DelayHoursFromPrevious *int               `json:"delayHoursFromPrevious"`
	ExpiresInHours         *int               `json:"expiresInHours"`
}

type moveRequest struct {
	Direction string `json:"direction"`
}

type upsellRequest struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	ButtonLabel string `json:"buttonLabel"`
	ButtonURL   string `json:"buttonUrl"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// requireAdmin rejects requests without a valid admin session cookie.
func (h *HTTPHandler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := h.store.Get(r, adminSessionName)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: session is invalid", models.ErrUnauthorized))
			return
		}

		if ok, _ := session.Values[adminKey].(bool); !ok {
			writeError(w, r, fmt.Errorf("%w: admin login required", models.ErrUnauthorized))
			return
		}

		next(w, r)
	}
}

func (h *HTTPHandler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Password == "" {
		writeError(w, r, fmt.Errorf("%w: password is required", models.ErrInvalidInput))
		return
	}
	if h.opts.AdminPassword == "" {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "admin password is not configured"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.opts.AdminPassword)) != 1 {
		zap.L().Warn("admin login rejected", zap.String("remote_addr", r.RemoteAddr))
		writeError(w, r, fmt.Errorf("%w: wrong password", models.ErrUnauthorized))
		return
	}

	// a stale or foreign cookie only yields a fresh session here
	session, _ := h.store.Get(r, adminSessionName)
	session.Values[adminKey] = true
	session.Values[loggedInAtKey] = time.Now().Unix()
	if err := session.Save(r, w); err != nil {
		writeError(w, r, fmt.Errorf("save admin session: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (h *HTTPHandler) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.store.Get(r, adminSessionName)
	session.Options.MaxAge = -1
	delete(session.Values, adminKey)
	if err := session.Save(r, w); err != nil {
		writeError(w, r, fmt.Errorf("drop admin session: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (h *HTTPHandler) handleAdminMe(w http.ResponseWriter, r *http.Request) {
	session, _ := h.store.Get(r, adminSessionName)

	resp := map[string]any{"authenticated": true}
	if at, ok := session.Values[loggedInAtKey].(int64); ok {
		resp["loggedInAt"] = time.Unix(at, 0).UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.service.ListPrograms(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newProgramsResponse(programs))
}

func (h *HTTPHandler) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var req programRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := service.ProgramInput{
		Name:        deref(req.Name),
		Description: deref(req.Description),
		IsActive:    deref(req.IsActive),
	}

	program, err := h.service.CreateProgram(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newProgramResponse(program))
}

func (h *HTTPHandler) handleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "programId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req programRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	program, err := h.service.UpdateProgram(r.Context(), id, service.ProgramPatch{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newProgramResponse(program))
}

func (h *HTTPHandler) handleListLessons(w http.ResponseWriter, r *http.Request) {
	programID, err := parseID(mux.Vars(r)["id"], "programId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	lessons, err := h.service.ListLessons(r.Context(), programID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newLessonsResponse(lessons))
}

func (h *HTTPHandler) handleCreateLesson(w http.ResponseWriter, r *http.Request) {
	programID, err := parseID(mux.Vars(r)["id"], "programId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req lessonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	lesson, err := h.service.CreateLesson(r.Context(), programID, service.LessonInput{
		Title:                  deref(req.Title),
		Description:            deref(req.Description),
		VideoURL:               deref(req.VideoURL),
		HomeworkText:           deref(req.HomeworkText),
		Visibility:             deref(req.Visibility),
		DelayHoursFromPrevious: deref(req.DelayHoursFromPrevious),
		ExpiresInHours:         deref(req.ExpiresInHours),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newLessonResponse(lesson))
}

func (h *HTTPHandler) handleUpdateLesson(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "lessonId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req lessonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	lesson, err := h.service.UpdateLesson(r.Context(), id, service.LessonPatch{
		Title:                  req.Title,
		Description:            req.Description,
		VideoURL:               req.VideoURL,
		HomeworkText:           req.HomeworkText,
		Visibility:             req.Visibility,
		DelayHoursFromPrevious: req.DelayHoursFromPrevious,
		ExpiresInHours:         req.ExpiresInHours,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newLessonResponse(lesson))
}

func (h *HTTPHandler) handleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "lessonId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.DeleteLesson(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "deleted"})
}

func (h *HTTPHandler) handleMoveLesson(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "lessonId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	lessons, err := h.service.MoveLesson(r.Context(), id, req.Direction)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newLessonsResponse(lessons))
}

func (h *HTTPHandler) handleGetUpsell(w http.ResponseWriter, r *http.Request) {
	upsell, err := h.service.GetUpsell(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUpsellResponse(upsell))
}

func (h *HTTPHandler) handleSaveUpsell(w http.ResponseWriter, r *http.Request) {
	var req upsellRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	upsell, err := h.service.SaveUpsell(r.Context(), service.UpsellInput{
		Title:       req.Title,
		Text:        req.Text,
		ButtonLabel: req.ButtonLabel,
		ButtonURL:   req.ButtonURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newUpsellResponse(upsell))
}

func (h *HTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newStatsResponse(stats))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
