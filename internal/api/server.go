// Package api serves the small HTTP surface next to the chat channel: the
// reminder form that button links point at, a health probe, and prometheus
// metrics.
package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carelink/internal/config"
	apperrors "carelink/internal/errors"
	"carelink/internal/reminder"
	"carelink/internal/router"
	"carelink/internal/security"
)

// Server handles the HTTP API.
type Server struct {
	app       *fiber.App
	config    *config.Config
	tokens    *security.FormTokens
	reminders *reminder.Store
	router    *router.Router
	logger    *zap.Logger
}

// New creates a new API server.
func New(cfg *config.Config, tokens *security.FormTokens, reminders *reminder.Store, rt *router.Router, log *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		tokens:    tokens,
		reminders: reminders,
		router:    rt,
		logger:    log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	s.app.Post("/webhook/events", s.handleWebhookEvent)
	s.app.Post("/forms/reminder", s.handleReminderForm)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// webhookEvent is the platform-agnostic inbound event envelope. Channels
// that lack a native long-poll adapter deliver through this endpoint.
type webhookEvent struct {
	Type        string `json:"type"` // text | postback | image | audio
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Text        string `json:"text"`
	Action      string `json:"action"` // query-string encoded postback payload
	Image       []byte `json:"image"`  // base64 in JSON
	Transcript  string `json:"transcript"`
}

type webhookReply struct {
	Text    string          `json:"text"`
	Buttons []webhookButton `json:"buttons,omitempty"`
}

type webhookButton struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

func (s *Server) handleWebhookEvent(c *fiber.Ctx) error {
	var ev webhookEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if ev.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}

	action, err := url.ParseQuery(ev.Action)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid action payload"})
	}

	replies := s.router.Handle(c.UserContext(), router.Event{
		Type:        router.EventType(ev.Type),
		UserID:      ev.UserID,
		DisplayName: ev.DisplayName,
		Text:        ev.Text,
		Action:      action,
		Image:       ev.Image,
		Transcript:  ev.Transcript,
	})

	out := make([]webhookReply, len(replies))
	for i, reply := range replies {
		out[i] = webhookReply{Text: reply.Text}
		for _, b := range reply.Buttons {
			out[i].Buttons = append(out[i].Buttons, webhookButton{Label: b.Label, Data: b.Data})
		}
	}
	return c.JSON(fiber.Map{"replies": out})
}

type reminderFormRequest struct {
	Token        string   `json:"token"`
	DrugName     string   `json:"drug_name"`
	DoseQuantity string   `json:"dose_quantity"`
	Frequency    string   `json:"frequency"`
	Notes        string   `json:"notes"`
	TimeSlots    []string `json:"time_slots"`
}

type reminderFormResponse struct {
	ID         string   `json:"id"`
	MemberName string   `json:"member_name"`
	DrugName   string   `json:"drug_name"`
	TimeSlots  []string `json:"time_slots"`
}

// handleReminderForm persists a reminder submitted through the web form. The
// form link embeds a short-lived token that pins both the submitting user and
// the target member, so the body never names either.
func (s *Server) handleReminderForm(c *fiber.Ctx) error {
	var req reminderFormRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	token := req.Token
	if token == "" {
		token = strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
	}

	userID, memberName, err := s.tokens.Verify(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired form token"})
	}

	req.DrugName = strings.TrimSpace(req.DrugName)
	if req.DrugName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "drug_name is required"})
	}
	if len(req.TimeSlots) > reminder.NumSlots {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("at most %d time slots", reminder.NumSlots),
		})
	}

	slots := make([]string, 0, len(req.TimeSlots))
	for _, slot := range req.TimeSlots {
		normalized, err := normalizeSlot(slot)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("invalid time slot %q", slot),
			})
		}
		slots = append(slots, normalized)
	}

	id, err := s.reminders.Upsert(userID, memberName, req.DrugName, reminder.Fields{
		DoseQuantity: req.DoseQuantity,
		Frequency:    req.Frequency,
		Notes:        req.Notes,
		TimeSlots:    slots,
	})
	if err != nil {
		s.logger.Error("Reminder form upsert failed",
			zap.String("user_id", userID),
			zap.String("code", apperrors.GetCode(err)),
			zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service temporarily unavailable"})
	}

	return c.JSON(reminderFormResponse{
		ID:         id,
		MemberName: memberName,
		DrugName:   req.DrugName,
		TimeSlots:  slots,
	})
}

// normalizeSlot accepts "HH:MM" or "HH:MM:SS" and returns "HH:MM:SS".
func normalizeSlot(slot string) (string, error) {
	slot = strings.TrimSpace(slot)
	if t, err := time.Parse("15:04:05", slot); err == nil {
		return t.Format("15:04:05"), nil
	}
	t, err := time.Parse("15:04", slot)
	if err != nil {
		return "", err
	}
	return t.Format("15:04:05"), nil
}
