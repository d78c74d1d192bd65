package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/service"
	"github.com/romanzh1/startup-sprint/pkg/utils"
	"go.uber.org/zap"
)

const (
	callbackRestartConfirm = "restart_confirm"
	callbackRestartCancel  = "restart_cancel"
)

// messageSender is the part of *tgbotapi.BotAPI used to talk back to users.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type TelegramHandler struct {
	api       *tgbotapi.BotAPI
	sender    messageSender
	service   Service
	webAppURL string
	schedule  string
}

// NewTelegramHandler builds the bot. schedule is a standard five-field cron expression
// for the unlock notifications, empty disables them.
func NewTelegramHandler(api *tgbotapi.BotAPI, svc Service, webAppURL, schedule string) (*TelegramHandler, error) {
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("parse notify schedule %q: %w", schedule, err)
		}
	}

	return &TelegramHandler{
		api:       api,
		sender:    api,
		service:   svc,
		webAppURL: webAppURL,
		schedule:  schedule,
	}, nil
}

// Start polls updates until ctx is cancelled.
func (h *TelegramHandler) Start(ctx context.Context) {
	scheduler := cron.New()
	if h.schedule != "" {
		if _, err := scheduler.AddFunc(h.schedule, func() { h.notifyTransitions(ctx) }); err != nil {
			zap.S().Error("schedule notifications", zap.Error(err))
		}
	}
	scheduler.Start()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := h.api.GetUpdatesChan(u)

	zap.S().Info("bot started")

	for {
		select {
		case <-ctx.Done():
			h.api.StopReceivingUpdates()
			<-scheduler.Stop().Done()
			zap.S().Info("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				<-scheduler.Stop().Done()
				return
			}
			h.handleUpdate(ctx, update)
		}
	}
}

func (h *TelegramHandler) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		if update.Message.From == nil {
			zap.S().Warn("received command from nil user")
			return
		}
		h.handleCommand(ctx, update.Message)
	case update.CallbackQuery != nil:
		if update.CallbackQuery.From == nil || update.CallbackQuery.Message == nil {
			zap.S().Warn("received callback without user or message")
			return
		}
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.sendMessage(update.Message.Chat.ID, "Я понимаю только команды. Используй /help")
	}
}

func (h *TelegramHandler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "progress":
		h.handleProgress(ctx, msg)
	case "restart":
		h.handleRestart(ctx, msg)
	case "help":
		h.sendMessage(msg.Chat.ID, helpText)
	default:
		h.sendMessage(msg.Chat.ID, "Неизвестная команда. Используй /help")
	}
}

func (h *TelegramHandler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	session, err := h.service.AuthTelegram(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		zap.S().Error("auth telegram user", zap.Error(err), zap.Int64("telegram_id", msg.From.ID))
		h.sendMessage(msg.Chat.ID, "Произошла ошибка. Попробуй позже.")
		return
	}

	text := fmt.Sprintf("Привет, %s! 👋\n\n", escapeHTML(displayName(msg.From))) + formatProgress(&session.UserPayload)
	if !session.User.IsPaid && session.Upsell != nil {
		text += "\n\n" + formatUpsell(session.Upsell)
	}

	h.sendMessageWithKeyboard(msg.Chat.ID, text, h.openKeyboard())
}

func (h *TelegramHandler) handleProgress(ctx context.Context, msg *tgbotapi.Message) {
	session, err := h.service.AuthTelegram(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		zap.S().Error("get progress", zap.Error(err), zap.Int64("telegram_id", msg.From.ID))
		h.sendMessage(msg.Chat.ID, "Не удалось загрузить прогресс. Попробуй позже.")
		return
	}

	h.sendMessageWithKeyboard(msg.Chat.ID, formatProgress(&session.UserPayload), h.openKeyboard())
}

func (h *TelegramHandler) handleRestart(ctx context.Context, msg *tgbotapi.Message) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Да, начать заново", callbackRestartConfirm),
			tgbotapi.NewInlineKeyboardButtonData("Отмена", callbackRestartCancel),
		),
	)

	h.sendMessageWithKeyboard(msg.Chat.ID, "Весь прогресс по текущей программе будет удалён. Начать заново?", keyboard)
}

func (h *TelegramHandler) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID

	if _, err := h.sender.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		zap.S().Warn("answer callback", zap.Error(err))
	}

	switch callback.Data {
	case callbackRestartCancel:
		h.sendMessage(chatID, "Хорошо, продолжаем 💪")
	case callbackRestartConfirm:
		session, err := h.service.AuthTelegram(ctx, callback.From.ID, callback.From.UserName)
		if err != nil {
			zap.S().Error("auth telegram user", zap.Error(err), zap.Int64("telegram_id", callback.From.ID))
			h.sendMessage(chatID, "Произошла ошибка. Попробуй позже.")
			return
		}

		payload, err := h.service.RestartProgram(ctx, session.User.ID)
		if errors.Is(err, models.ErrNotFound) {
			h.sendMessage(chatID, "Сейчас нет активной программы.")
			return
		}
		if err != nil {
			zap.S().Error("restart program", zap.Error(err), zap.Int64("telegram_id", callback.From.ID))
			h.sendMessage(chatID, "Не удалось начать заново. Попробуй позже.")
			return
		}

		h.sendMessageWithKeyboard(chatID, "Программа начата заново.\n\n"+formatProgress(payload), h.openKeyboard())
	default:
		zap.S().Warn("unknown callback", zap.String("data", callback.Data))
	}
}

// notifyTransitions runs a progress sweep and tells users what changed for them.
func (h *TelegramHandler) notifyTransitions(ctx context.Context) {
	transitions, err := h.service.RefreshAll(ctx)
	if err != nil {
		zap.S().Error("refresh all progress", zap.Error(err))
		return
	}

	sent := 0
	for _, tr := range transitions {
		text := formatTransition(tr)
		if text == "" {
			continue
		}
		h.sendMessageWithKeyboard(tr.TelegramID, text, h.openKeyboard())
		sent++
	}

	if sent > 0 {
		zap.S().Infow("progress notifications sent", "count", sent)
	}
}

func (h *TelegramHandler) openKeyboard() any {
	if h.webAppURL == "" {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Открыть уроки", h.webAppURL)),
	)
}

func (h *TelegramHandler) sendMessage(chatID int64, text string) {
	h.sendMessageWithKeyboard(chatID, text, nil)
}

func (h *TelegramHandler) sendMessageWithKeyboard(chatID int64, text string, keyboard any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	if _, err := h.sender.Send(msg); err != nil {
		zap.S().Error("send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

const helpText = `📚 <b>Стартап-спринт</b>

Уроки открываются по одному. После выполнения урока следующий откроется через заданное время, и на каждый урок есть ограниченное окно. Если окно пропущено, программа считается проваленной.

Доступные команды:

/start - Начать работу с ботом
/progress - Показать прогресс
/restart - Начать программу заново
/help - Справка`

func formatProgress(p *service.UserPayload) string {
	if p.Program == nil {
		return "Сейчас нет активной программы. Загляни позже."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n", escapeHTML(p.Program.Name))
	fmt.Fprintf(&sb, "Статус: %s\n", programStatusTitle(p.ProgressStatus))
	fmt.Fprintf(&sb, "Пройдено уроков: %d из %d\n", p.CompletedLessons, p.TotalLessons)

	for i, l := range p.Lessons {
		fmt.Fprintf(&sb, "\n%s %d. %s", lessonStatusIcon(l.Status), i+1, escapeHTML(l.Lesson.Title))

		switch {
		case l.Status == models.LessonAvailable && l.ExpiresAt != nil:
			fmt.Fprintf(&sb, " (до %s)", utils.FormatMoscow(*l.ExpiresAt))
		case l.Status == models.LessonLocked && l.UnlockedAt != nil:
			fmt.Fprintf(&sb, " (откроется %s)", utils.FormatMoscow(*l.UnlockedAt))
		case l.Status == models.LessonLocked && l.Lesson.Visibility == models.VisibilityPaid && !p.User.IsPaid:
			sb.WriteString(" (платный)")
		}
	}

	return sb.String()
}

func formatTransition(tr service.Transition) string {
	if tr.Failed {
		return "⌛ Время на урок истекло, программа не пройдена.\n\nЧтобы попробовать снова, используй /restart"
	}
	if len(tr.Unlocked) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("🔓 Открыт новый урок!\n")
	for _, l := range tr.Unlocked {
		fmt.Fprintf(&sb, "\n<b>%s</b>", escapeHTML(l.Title))
		if l.ExpiresInHours > 0 {
			fmt.Fprintf(&sb, " - на выполнение %d ч.", l.ExpiresInHours)
		}
	}
	return sb.String()
}

func formatUpsell(u *models.UpsellSettings) string {
	text := "<b>" + escapeHTML(u.Title) + "</b>"
	if u.Text != "" {
		text += "\n" + escapeHTML(u.Text)
	}
	if u.ButtonURL != "" {
		text += fmt.Sprintf("\n<a href=\"%s\">%s</a>", escapeHTML(u.ButtonURL), escapeHTML(u.ButtonLabel))
	}
	return text
}

func programStatusTitle(status models.ProgramStatus) string {
	switch status {
	case models.ProgramInProgress:
		return "в процессе"
	case models.ProgramCompleted:
		return "пройдена 🎉"
	case models.ProgramFailed:
		return "не пройдена"
	default:
		return "не начата"
	}
}

func lessonStatusIcon(status models.LessonStatus) string {
	switch status {
	case models.LessonDone:
		return "✅"
	case models.LessonAvailable:
		return "🟢"
	case models.LessonExpired:
		return "⌛"
	default:
		return "🔒"
	}
}

func displayName(u *tgbotapi.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.UserName != "" {
		return u.UserName
	}
	return "друг"
}

func escapeHTML(text string) string {
	// & first, so already produced entities are not escaped twice
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
