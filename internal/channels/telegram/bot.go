// Package telegram adapts Telegram updates to router events and implements
// the push side used by the reminder scheduler.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	apperrors "carelink/internal/errors"
	"carelink/internal/recognize"
	"carelink/internal/router"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Config holds Telegram bot settings.
type Config struct {
	Token     string
	Enabled   bool
	AllowList []int64 // empty = allow all
}

// Bot long-polls Telegram, feeds each update through the router, and sends
// the replies back. It also implements the scheduler's Pusher.
type Bot struct {
	api         *tgbotapi.BotAPI
	router      *router.Router
	transcriber recognize.Transcriber
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	enabled     bool
	allowList   map[int64]bool
}

// NewBot creates a Telegram bot. A disabled config yields an inert bot so
// callers need no nil checks.
func NewBot(cfg Config, r *router.Router, transcriber recognize.Transcriber, logger *zap.Logger) (*Bot, error) {
	if !cfg.Enabled || cfg.Token == "" {
		return &Bot{enabled: false}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = false
	logger.Info("telegram bot authorized", zap.String("username", api.Self.UserName))

	ctx, cancel := context.WithCancel(context.Background())

	allowList := make(map[int64]bool)
	for _, id := range cfg.AllowList {
		allowList[id] = true
	}

	return &Bot{
		api:         api,
		router:      r,
		transcriber: transcriber,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		enabled:     true,
		allowList:   allowList,
	}, nil
}

// Start begins long-polling.
func (b *Bot) Start() error {
	if !b.enabled {
		return nil
	}
	b.wg.Add(1)
	go b.run()
	return nil
}

// Stop shuts the polling loop down and waits for in-flight updates.
func (b *Bot) Stop() {
	if !b.enabled {
		return
	}
	b.cancel()
	b.wg.Wait()
}

func (b *Bot) run() {
	defer b.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	// Inline keyboard taps arrive as callback queries, everything else as
	// messages.
	if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
		return
	}
	if update.Message == nil {
		return
	}

	msg := update.Message
	from := msg.From
	if from == nil {
		return
	}
	if len(b.allowList) > 0 && !b.allowList[from.ID] {
		b.send(msg.Chat.ID, []router.Reply{{Text: "⛔ You are not authorized to use this bot."}})
		return
	}

	ev := router.Event{
		UserID:      strconv.FormatInt(from.ID, 10),
		DisplayName: displayName(from),
	}

	switch {
	case msg.Text != "":
		ev.Type = router.EventText
		ev.Text = msg.Text
	case msg.Voice != nil:
		b.typing(msg.Chat.ID)
		transcript, err := b.transcribe(msg.Voice.FileID)
		if err != nil {
			b.logger.Warn("voice transcription failed", zap.Error(err))
			b.send(msg.Chat.ID, []router.Reply{{Text: "Sorry, I could not make out that voice message. Please try again."}})
			return
		}
		ev.Type = router.EventAudio
		ev.Transcript = transcript
	case len(msg.Photo) > 0:
		b.typing(msg.Chat.ID)
		// Largest size is last.
		image, err := b.download(msg.Photo[len(msg.Photo)-1].FileID)
		if err != nil {
			b.logger.Warn("photo download failed", zap.Error(err))
			b.send(msg.Chat.ID, []router.Reply{{Text: "I couldn't download that photo. Please try again."}})
			return
		}
		ev.Type = router.EventImage
		ev.Image = image
	default:
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, 60*time.Second)
	defer cancel()
	b.send(msg.Chat.ID, b.router.Handle(ctx, ev))
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if len(b.allowList) > 0 && !b.allowList[cb.From.ID] {
		return
	}
	// Stop the client-side spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Debug("callback ack failed", zap.Error(err))
	}

	action, err := url.ParseQuery(cb.Data)
	if err != nil {
		b.logger.Warn("malformed callback data", zap.String("data", cb.Data))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, 60*time.Second)
	defer cancel()

	replies := b.router.Handle(ctx, router.Event{
		Type:        router.EventPostback,
		UserID:      strconv.FormatInt(cb.From.ID, 10),
		DisplayName: displayName(cb.From),
		Action:      action,
	})

	chatID := cb.From.ID
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
	}
	b.send(chatID, replies)
}

// Push implements the scheduler's delivery contract. The user id is the
// Telegram numeric id in string form.
func (b *Bot) Push(ctx context.Context, userID, message string) error {
	if !b.enabled {
		return apperrors.New(apperrors.ErrDeliveryFailed.Code, "telegram channel disabled")
	}
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDeliveryFailed.Code, "invalid recipient id")
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, message)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDeliveryFailed.Code, "telegram push")
	}
	return nil
}

func (b *Bot) send(chatID int64, replies []router.Reply) {
	for _, reply := range replies {
		text := reply.Text
		if len(text) > 4096 {
			text = text[:4093] + "..."
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if len(reply.Buttons) > 0 {
			rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reply.Buttons))
			for _, btn := range reply.Buttons {
				rows = append(rows, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data),
				))
			}
			msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
		}
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error("failed to send message", zap.Error(err), zap.Int64("chat", chatID))
		}
	}
}

func (b *Bot) typing(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("typing indicator failed", zap.Error(err))
	}
}

func (b *Bot) transcribe(fileID string) (string, error) {
	if b.transcriber == nil {
		return "", apperrors.ErrRecognitionFailed
	}
	audio, err := b.download(fileID)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(b.ctx, 30*time.Second)
	defer cancel()
	return b.transcriber.Transcribe(ctx, audio)
}

// download fetches a Telegram file into memory. Prescription photos and
// voice notes are small enough that spilling to disk buys nothing.
func (b *Bot) download(fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	resp, err := http.Get(file.Link(b.api.Token))
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
}

func displayName(user *tgbotapi.User) string {
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" {
		name = user.UserName
	}
	return name
}
