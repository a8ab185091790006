// Package router turns normalized platform events into replies. It owns the
// priority rules between global commands, in-flight conversation flows, and
// fallbacks, and it is the only layer deciding which subsystem an event
// belongs to. Handle never returns an error: every failure becomes a
// user-facing reply.
package router

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"carelink/internal/convstate"
	apperrors "carelink/internal/errors"
	"carelink/internal/health"
	"carelink/internal/metrics"
	"carelink/internal/profile"
	"carelink/internal/recognize"
	"carelink/internal/reminder"
	"carelink/internal/security"
	"go.uber.org/zap"
)

// EventType classifies an inbound platform event.
type EventType string

const (
	EventText     EventType = "text"
	EventPostback EventType = "postback"
	EventImage    EventType = "image"
	EventAudio    EventType = "audio"
)

// Event is one normalized inbound event.
type Event struct {
	Type        EventType
	UserID      string
	DisplayName string
	Text        string
	Action      url.Values // postback action descriptor
	Image       []byte
	Transcript  string // transcribed audio
}

// Button is a postback button attached to a reply. Data is a query-string
// encoded action descriptor.
type Button struct {
	Label string
	Data  string
}

// Reply is one outbound message.
type Reply struct {
	Text    string
	Buttons []Button
}

// Conversation flow identifiers. The wire form is "flow" or "flow:arg".
const (
	flowAwaitMemberName        = "awaiting_new_member_name"
	flowRenameMember           = "rename_member_profile"
	flowCustomRelation         = "custom_relation"
	flowAwaitVitals            = "awaiting_health_vitals"
	flowAwaitPrescriptionImage = "awaiting_prescription_image"
	flowAwaitPillImage         = "awaiting_pill_image"
	flowPrescriptionDraft      = "prescription_draft"
	flowAwaitReminderMember    = "awaiting_reminder_member"
)

const msgUnavailable = "The service is temporarily unavailable. Please try again later."

// Deps collects the router's collaborators.
type Deps struct {
	Profiles      *profile.Store
	Invites       *profile.InviteStore
	Reminders     *reminder.Store
	HealthLogs    *health.Store
	States        *convstate.Store
	Prescriptions recognize.PrescriptionRecognizer
	Pills         recognize.PillRecognizer
	MedParser     recognize.MedicationParser
	FormTokens    *security.FormTokens
	FormBaseURL   string
	Logger        *zap.Logger
}

// Router dispatches inbound events.
type Router struct {
	profiles      *profile.Store
	invites       *profile.InviteStore
	reminders     *reminder.Store
	healthLogs    *health.Store
	states        *convstate.Store
	prescriptions recognize.PrescriptionRecognizer
	pills         recognize.PillRecognizer
	medParser     recognize.MedicationParser
	vitalsParser  *health.Parser
	tokens        *security.FormTokens
	formBaseURL   string
	logger        *zap.Logger
}

// New creates a router.
func New(d Deps) *Router {
	return &Router{
		profiles:      d.Profiles,
		invites:       d.Invites,
		reminders:     d.Reminders,
		healthLogs:    d.HealthLogs,
		states:        d.States,
		prescriptions: d.Prescriptions,
		pills:         d.Pills,
		medParser:     d.MedParser,
		vitalsParser:  health.NewParser(),
		tokens:        d.FormTokens,
		formBaseURL:   d.FormBaseURL,
		logger:        d.Logger,
	}
}

// Handle processes one event and returns the replies to send. It never
// returns an error; failures are logged and rendered as user messages.
func (r *Router) Handle(ctx context.Context, ev Event) (replies []Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("router panic", zap.Any("panic", rec), zap.String("user", ev.UserID))
			replies = text(msgUnavailable)
		}
	}()
	metrics.RouterEvents.WithLabelValues(string(ev.Type)).Inc()

	user, err := r.profiles.CreateOrGetUser(ev.UserID, ev.DisplayName)
	if err != nil {
		r.logger.Error("failed to load user", zap.Error(err), zap.String("user", ev.UserID))
		return text(msgUnavailable)
	}

	switch ev.Type {
	case EventText:
		return r.handleText(ctx, user, strings.TrimSpace(ev.Text))
	case EventAudio:
		return r.handleTranscript(ctx, user, strings.TrimSpace(ev.Transcript))
	case EventImage:
		return r.handleImage(ctx, user, ev.Image)
	case EventPostback:
		return r.handlePostback(ctx, user, ev.Action)
	default:
		return r.helpReply()
	}
}

// handleText applies the resolution order: global keywords, the bind-code
// entry point, active-flow continuations (with cancel ahead of everything
// stateful), the member-name fallback, then help.
func (r *Router) handleText(ctx context.Context, user *profile.User, msg string) []Reply {
	lower := strings.ToLower(msg)

	if handler, ok := r.globalCommands()[lower]; ok {
		if err := r.states.Clear(user.ID); err != nil {
			r.logger.Warn("failed to clear state", zap.Error(err), zap.String("user", user.ID))
		}
		return handler(user)
	}

	if code, ok := strings.CutPrefix(lower, "bind "); ok {
		return r.redeemInvite(user, strings.ToUpper(strings.TrimSpace(code)))
	}

	state, err := r.states.Get(user.ID)
	if err != nil {
		r.logger.Error("failed to load conversation state", zap.Error(err), zap.String("user", user.ID))
		return text(msgUnavailable)
	}
	if state != nil {
		if lower == "cancel" {
			r.clearState(user.ID)
			return text("Operation cancelled.")
		}
		return r.continueFlow(ctx, user, state, msg)
	}

	member, err := r.profiles.MemberByName(user.ID, msg)
	if err != nil {
		return r.errorReply(err)
	}
	if member != nil {
		return r.listReminders(user, member.Name)
	}

	return r.helpReply()
}

// handleTranscript routes transcribed voice. An active flow owns the
// transcript exactly as it would own typed text; only stateless transcripts
// get fresh medication/vitals interpretation.
func (r *Router) handleTranscript(ctx context.Context, user *profile.User, transcript string) []Reply {
	if transcript == "" {
		return text("Sorry, I could not make out that voice message. Please try again.")
	}

	state, err := r.states.Get(user.ID)
	if err != nil {
		r.logger.Error("failed to load conversation state", zap.Error(err), zap.String("user", user.ID))
		return text(msgUnavailable)
	}
	if state != nil {
		return r.handleText(ctx, user, transcript)
	}

	if parsed := r.medParser.ParseMedication(transcript); parsed != nil {
		return r.startVoiceReminder(user, parsed)
	}
	if log := r.vitalsParser.Parse(transcript); log != nil {
		return r.recordVitals(user, profile.SelfMemberName, log)
	}
	return r.handleText(ctx, user, transcript)
}

// handleImage only means something while a flow is waiting for a photo.
func (r *Router) handleImage(ctx context.Context, user *profile.User, image []byte) []Reply {
	state, err := r.states.Get(user.ID)
	if err != nil {
		r.logger.Error("failed to load conversation state", zap.Error(err), zap.String("user", user.ID))
		return text(msgUnavailable)
	}
	if state == nil {
		return text("To scan a prescription or identify a pill, open the menu first.")
	}

	switch state.Flow {
	case flowAwaitPrescriptionImage:
		return r.recognizePrescription(ctx, user, state.Arg, image)
	case flowAwaitPillImage:
		return r.recognizePills(ctx, user, image)
	default:
		return text("I wasn't expecting a photo right now. Type \"cancel\" to start over.")
	}
}

// globalCommands are the reserved keywords that always win and always clear
// conversation state before executing.
func (r *Router) globalCommands() map[string]func(*profile.User) []Reply {
	return map[string]func(*profile.User) []Reply{
		"menu":                 r.mainMenu,
		"main menu":            r.mainMenu,
		"reminders":            r.reminderMenu,
		"medication reminders": r.reminderMenu,
		"family":               r.familyMenu,
		"family binding":       r.familyMenu,
		"health":               r.healthMenu,
		"health log":           r.healthMenu,
		"settings":             r.settingsMenu,
		"scan prescription":    r.startPrescriptionScan,
		"identify pill":        r.startPillScan,
		"help":                 func(*profile.User) []Reply { return r.helpReply() },
	}
}

func (r *Router) mainMenu(*profile.User) []Reply {
	return []Reply{{
		Text: "📋 Main menu — what would you like to do?",
		Buttons: []Button{
			{Label: "💊 Medication reminders", Data: pb(ActionReminderMenu)},
			{Label: "📄 Scan prescription", Data: pb(ActionScanPrescription)},
			{Label: "🔍 Identify pill", Data: pb(ActionScanPill)},
			{Label: "👪 Family binding", Data: pb(ActionFamilyMenu)},
			{Label: "❤️ Health log", Data: pb(ActionHealthRecord)},
			{Label: "⚙️ Settings", Data: pb(ActionSettingsMenu)},
		},
	}}
}

func (r *Router) reminderMenu(user *profile.User) []Reply {
	members, err := r.profiles.Members(user.ID)
	if err != nil {
		return r.errorReply(err)
	}

	buttons := make([]Button, 0, len(members)+2)
	for _, m := range members {
		buttons = append(buttons, Button{
			Label: "💊 " + m.Name,
			Data:  pb(ActionViewReminders, "member", m.Name),
		})
	}
	buttons = append(buttons,
		Button{Label: "➕ Add member", Data: pb(ActionAddMember)},
		Button{Label: "🗑️ Remove member", Data: pb(ActionConfirmDeleteMember)},
	)
	return []Reply{{Text: "Whose reminders would you like to manage?", Buttons: buttons}}
}

func (r *Router) familyMenu(user *profile.User) []Reply {
	bindings, err := r.profiles.Bindings(user.ID)
	if err != nil {
		return r.errorReply(err)
	}

	buttons := []Button{
		{Label: "🔗 Generate binding code", Data: pb(ActionGenerateInvite)},
	}
	if len(bindings) > 0 {
		buttons = append(buttons, Button{Label: "👀 Family reminders", Data: pb(ActionQueryFamily)})
		for _, b := range bindings {
			buttons = append(buttons, Button{
				Label: "✂️ Unbind " + b.RelationType,
				Data:  pb(ActionConfirmUnbind, "user_id", b.BoundUserID),
			})
		}
	}

	body := "👪 Family binding lets you manage reminders for someone else's account."
	if len(bindings) == 0 {
		body += "\nNo bindings yet. Generate a code and have your family member send it back as \"bind CODE\"."
	}
	return []Reply{{Text: body, Buttons: buttons}}
}

func (r *Router) healthMenu(user *profile.User) []Reply {
	return []Reply{{
		Text: "❤️ Health log",
		Buttons: []Button{
			{Label: "📝 Record vitals", Data: pb(ActionHealthRecord)},
			{Label: "📈 History", Data: pb(ActionHealthHistory)},
		},
	}}
}

func (r *Router) settingsMenu(*profile.User) []Reply {
	return []Reply{{
		Text: "⚙️ Settings",
		Buttons: []Button{
			{Label: "📖 Instructions", Data: pb(ActionShowInstructions)},
		},
	}}
}

func (r *Router) startPrescriptionScan(user *profile.User) []Reply {
	return r.selectMemberFor(user, ActionScanPrescription, "Who is this prescription for?")
}

func (r *Router) startPillScan(user *profile.User) []Reply {
	if err := r.states.SetFlow(user.ID, flowAwaitPillImage, ""); err != nil {
		return r.errorReply(err)
	}
	return text("📷 Send me a clear photo of the pill.")
}

func (r *Router) helpReply() []Reply {
	return []Reply{{
		Text: "I didn't catch that. Type \"menu\" to see everything I can do, " +
			"or send a member's name to see their reminders.",
	}}
}

// selectMemberFor renders the member list as buttons that re-enter the same
// action with a member parameter.
func (r *Router) selectMemberFor(user *profile.User, action Action, prompt string) []Reply {
	members, err := r.profiles.Members(user.ID)
	if err != nil {
		return r.errorReply(err)
	}
	buttons := make([]Button, 0, len(members))
	for _, m := range members {
		buttons = append(buttons, Button{Label: m.Name, Data: pb(action, "member", m.Name)})
	}
	return []Reply{{Text: prompt, Buttons: buttons}}
}

func (r *Router) clearState(userID string) {
	if err := r.states.Clear(userID); err != nil {
		r.logger.Warn("failed to clear state", zap.Error(err), zap.String("user", userID))
	}
}

// errorReply maps store and collaborator errors onto user messages. Not-found
// and permission failures read identically so nothing leaks about other
// users' data.
func (r *Router) errorReply(err error) []Reply {
	switch apperrors.GetCode(err) {
	case apperrors.ErrDuplicateName.Code:
		return text("That name is already in use. Please pick another one.")
	case apperrors.ErrNotFound.Code, apperrors.ErrPermissionDenied.Code:
		return text("I couldn't find that record.")
	case apperrors.ErrSelfMember.Code:
		return text("Your own profile cannot be removed.")
	case apperrors.ErrAlreadyBound.Code:
		if appErr, ok := err.(*apperrors.AppError); ok {
			return text("⚠️ " + appErr.Message + ".")
		}
		return text("⚠️ A binding between these accounts already exists.")
	case apperrors.ErrRecognitionFailed.Code:
		return text("Sorry, I could not understand that. Please try again.")
	default:
		r.logger.Error("unexpected error", zap.Error(err))
		return text(msgUnavailable)
	}
}

func text(msg string) []Reply {
	return []Reply{{Text: msg}}
}

// pb encodes a postback action descriptor with optional key-value pairs. The
// short "a" key keeps the worst-case payload under Telegram's 64-byte
// callback-data limit.
func pb(action Action, kv ...string) string {
	v := url.Values{"a": {string(action)}}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v.Encode()
}

func formatSlots(slots []string) string {
	if len(slots) == 0 {
		return "no fixed time"
	}
	short := make([]string, len(slots))
	for i, s := range slots {
		if len(s) >= 5 {
			short[i] = s[:5]
		} else {
			short[i] = s
		}
	}
	return strings.Join(short, ", ")
}

func (r *Router) listReminders(user *profile.User, memberName string) []Reply {
	reminders, err := r.reminders.List(user.ID, memberName)
	if err != nil {
		return r.errorReply(err)
	}
	if len(reminders) == 0 {
		return []Reply{{
			Text: fmt.Sprintf("No reminders for %s yet.", memberName),
			Buttons: []Button{
				{Label: "📝 Add via form", Data: pb(ActionReminderForm, "member", memberName)},
			},
		}}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "💊 Reminders for %s:\n", memberName)
	buttons := make([]Button, 0, len(reminders)+2)
	for i, rem := range reminders {
		fmt.Fprintf(&b, "%d. %s", i+1, rem.DrugName)
		if rem.DoseQuantity != "" {
			fmt.Fprintf(&b, " — %s", rem.DoseQuantity)
		}
		fmt.Fprintf(&b, " (⏰ %s)\n", formatSlots(rem.Slots()))
		buttons = append(buttons, Button{
			Label: "🗑️ Delete " + rem.DrugName,
			Data:  pb(ActionConfirmDeleteReminder, "reminder_id", rem.ID),
		})
	}
	buttons = append(buttons,
		Button{Label: "📝 Add via form", Data: pb(ActionReminderForm, "member", memberName)},
		Button{Label: "🧹 Clear all", Data: pb(ActionConfirmClearReminders, "member", memberName)},
	)
	return []Reply{{Text: b.String(), Buttons: buttons}}
}
