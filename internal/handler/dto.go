package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/progression"
	"github.com/romanzh1/startup-sprint/internal/service"
)

// telegramID accepts both a JSON number and a numeric string, Telegram web apps send either.
type telegramID int64

func (t *telegramID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*t = 0
		return nil
	}

	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("telegramId: %w", err)
	}
	*t = telegramID(id)
	return nil
}

func (t telegramID) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(t), 10))
}

type programResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	IsActive     bool      `json:"isActive"`
	LessonsCount *int      `json:"lessonsCount,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type lessonResponse struct {
	ID                     string            `json:"id"`
	ProgramID              string            `json:"programId"`
	OrderIndex             int               `json:"orderIndex"`
	Title                  string            `json:"title"`
	Description            string            `json:"description"`
	VideoURL               string            `json:"videoUrl"`
	HomeworkText           string            `json:"homeworkText"`
	Visibility             models.Visibility `json:"visibility"`
	DelayHoursFromPrevious int               `json:"delayHoursFromPrevious"`
	ExpiresInHours         int               `json:"expiresInHours"`
	CreatedAt              time.Time         `json:"createdAt"`
	UpdatedAt              time.Time         `json:"updatedAt"`
}

type userLessonResponse struct {
	lessonResponse
	UserStatus  models.LessonStatus `json:"userStatus"`
	UnlockedAt  *time.Time          `json:"unlockedAt"`
	ExpiresAt   *time.Time          `json:"expiresAt"`
	CompletedAt *time.Time          `json:"completedAt"`
}

type upsellResponse struct {
	Title       string     `json:"title"`
	Text        string     `json:"text"`
	ButtonLabel string     `json:"buttonLabel"`
	ButtonURL   string     `json:"buttonUrl"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type payloadResponse struct {
	UserID           string               `json:"userId"`
	IsPaid           bool                 `json:"isPaid"`
	Program          *programResponse     `json:"program"`
	Lessons          []userLessonResponse `json:"lessons"`
	CompletedLessons int                  `json:"completedLessons"`
	TotalLessons     int                  `json:"totalLessons"`
	ProgressStatus   models.ProgramStatus `json:"progressStatus"`
	StartedAt        *time.Time           `json:"startedAt"`
	FinishedAt       *time.Time           `json:"finishedAt"`
	Upsell           *upsellResponse      `json:"upsell"`
}

type authResponse struct {
	payloadResponse
	TelegramID       telegramID `json:"telegramId"`
	MembershipReason string     `json:"membershipReason,omitempty"`
}

type membershipResponse struct {
	TelegramID       telegramID `json:"telegramId"`
	UserID           *string    `json:"userId"`
	IsPaid           bool       `json:"isPaid"`
	MembershipReason string     `json:"membershipReason,omitempty"`
}

type statsResponse struct {
	Users     int `json:"users"`
	Paid      int `json:"paid"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func newProgramResponse(p *models.Program) *programResponse {
	if p == nil {
		return nil
	}
	return &programResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func newProgramsResponse(programs []*models.ProgramWithCount) []*programResponse {
	out := make([]*programResponse, 0, len(programs))
	for _, p := range programs {
		resp := newProgramResponse(&p.Program)
		count := p.LessonCount
		resp.LessonsCount = &count
		out = append(out, resp)
	}
	return out
}

func newLessonResponse(l *models.Lesson) lessonResponse {
	return lessonResponse{
		ID:                     l.ID.String(),
		ProgramID:              l.ProgramID.String(),
		OrderIndex:             l.OrderIndex,
		Title:                  l.Title,
		Description:            l.Description,
		VideoURL:               l.VideoURL,
		HomeworkText:           l.HomeworkText,
		Visibility:             l.Visibility,
		DelayHoursFromPrevious: l.DelayHoursFromPrevious,
		ExpiresInHours:         l.ExpiresInHours,
		CreatedAt:              l.CreatedAt,
		UpdatedAt:              l.UpdatedAt,
	}
}

func newLessonsResponse(lessons []*models.Lesson) []lessonResponse {
	out := make([]lessonResponse, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, newLessonResponse(l))
	}
	return out
}

func newUserLessonResponse(v progression.LessonView) userLessonResponse {
	return userLessonResponse{
		lessonResponse: newLessonResponse(v.Lesson),
		UserStatus:     v.Status,
		UnlockedAt:     v.UnlockedAt,
		ExpiresAt:      v.ExpiresAt,
		CompletedAt:    v.CompletedAt,
	}
}

func newUpsellResponse(u *models.UpsellSettings) *upsellResponse {
	if u == nil {
		return nil
	}
	resp := &upsellResponse{
		Title:       u.Title,
		Text:        u.Text,
		ButtonLabel: u.ButtonLabel,
		ButtonURL:   u.ButtonURL,
	}
	if !u.UpdatedAt.IsZero() {
		updated := u.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

func newPayloadResponse(p *service.UserPayload) payloadResponse {
	lessons := make([]userLessonResponse, 0, len(p.Lessons))
	for _, v := range p.Lessons {
		lessons = append(lessons, newUserLessonResponse(v))
	}

	return payloadResponse{
		UserID:           p.User.ID.String(),
		IsPaid:           p.User.IsPaid,
		Program:          newProgramResponse(p.Program),
		Lessons:          lessons,
		CompletedLessons: p.CompletedLessons,
		TotalLessons:     p.TotalLessons,
		ProgressStatus:   p.ProgressStatus,
		StartedAt:        p.StartedAt,
		FinishedAt:       p.FinishedAt,
		Upsell:           newUpsellResponse(p.Upsell),
	}
}

func newAuthResponse(s *service.Session) authResponse {
	return authResponse{
		payloadResponse:  newPayloadResponse(&s.UserPayload),
		TelegramID:       telegramID(s.User.TelegramID),
		MembershipReason: s.Membership.Reason,
	}
}

func newMembershipResponse(s *service.MembershipStatus) membershipResponse {
	resp := membershipResponse{
		TelegramID:       telegramID(s.TelegramID),
		IsPaid:           s.IsPaid,
		MembershipReason: s.Reason,
	}
	if s.UserID != nil {
		id := s.UserID.String()
		resp.UserID = &id
	}
	return resp
}

func newStatsResponse(s *models.Stats) statsResponse {
	return statsResponse{
		Users:     s.Users,
		Paid:      s.Paid,
		Completed: s.Completed,
		Failed:    s.Failed,
	}
}
