package router

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"carelink/internal/profile"
	"carelink/internal/reminder"
	"go.uber.org/zap"
)

// handlePostback resolves the action's category, then dispatches within it.
func (r *Router) handlePostback(ctx context.Context, user *profile.User, params url.Values) []Reply {
	action := Action(params.Get("a"))

	switch categoryOf(action) {
	case categoryReminder:
		return r.handleReminderAction(user, action, params)
	case categoryBinding:
		return r.handleBindingAction(user, action, params)
	case categoryRecognition:
		return r.handleRecognitionAction(user, action, params)
	case categorySettings:
		return r.handleSettingsAction(user, action)
	case categoryHealth:
		return r.handleHealthAction(user, action, params)
	default:
		r.logger.Warn("unknown postback action", zap.String("action", string(action)), zap.String("user", user.ID))
		return r.helpReply()
	}
}

func (r *Router) handleReminderAction(user *profile.User, action Action, params url.Values) []Reply {
	switch action {
	case ActionReminderMenu:
		return r.reminderMenu(user)

	case ActionAddMember:
		if err := r.states.SetFlow(user.ID, flowAwaitMemberName, ""); err != nil {
			return r.errorReply(err)
		}
		return text("What's the member's name? (e.g. Mom)")

	case ActionRenameMember:
		memberID := params.Get("member_id")
		member, err := r.profiles.MemberByID(user.ID, memberID)
		if err != nil {
			return r.errorReply(err)
		}
		if err := r.states.SetFlow(user.ID, flowRenameMember, member.ID); err != nil {
			return r.errorReply(err)
		}
		return text(fmt.Sprintf("What should %s be called instead?", member.Name))

	case ActionConfirmDeleteMember:
		memberID := params.Get("member_id")
		if memberID == "" {
			return r.deletableMemberButtons(user)
		}
		member, err := r.profiles.MemberByID(user.ID, memberID)
		if err != nil {
			return r.errorReply(err)
		}
		return confirmPrompt(
			fmt.Sprintf("⚠️ Remove %s? All of their reminders and health records will be deleted too.", member.Name),
			pb(ActionExecuteDeleteMember, "member_id", member.ID),
		)

	case ActionExecuteDeleteMember:
		member, err := r.profiles.MemberByID(user.ID, params.Get("member_id"))
		if err != nil {
			return r.errorReply(err)
		}
		deleted, err := r.profiles.DeleteMember(user.ID, member.ID)
		if err != nil {
			return r.errorReply(err)
		}
		if !deleted {
			return text("I couldn't find that member.")
		}
		return text(fmt.Sprintf("🗑️ Removed %s and all of their reminders.", member.Name))

	case ActionViewReminders:
		return r.listReminders(user, params.Get("member"))

	case ActionReminderForm:
		return r.reminderFormLink(user, params.Get("member"))

	case ActionConfirmDeleteReminder:
		rem, err := r.reminders.Get(user.ID, params.Get("reminder_id"))
		if err != nil {
			return r.errorReply(err)
		}
		return confirmPrompt(
			fmt.Sprintf("⚠️ Delete the %s reminder for %s?", rem.DrugName, rem.MemberName),
			pb(ActionExecuteDeleteReminder, "reminder_id", rem.ID),
		)

	case ActionExecuteDeleteReminder:
		deleted, err := r.reminders.Delete(user.ID, params.Get("reminder_id"))
		if err != nil {
			return r.errorReply(err)
		}
		if !deleted {
			return text("I couldn't find that reminder.")
		}
		return text("🗑️ Reminder deleted.")

	case ActionConfirmClearReminders:
		member := params.Get("member")
		return confirmPrompt(
			fmt.Sprintf("⚠️ Delete ALL reminders for %s? This cannot be undone.", member),
			pb(ActionExecuteClearReminders, "member", member),
		)

	case ActionExecuteClearReminders:
		member := params.Get("member")
		count, err := r.reminders.Clear(user.ID, member)
		if err != nil {
			return r.errorReply(err)
		}
		return text(fmt.Sprintf("🧹 Cleared %d reminder(s) for %s.", count, member))
	}
	return r.helpReply()
}

func (r *Router) handleBindingAction(user *profile.User, action Action, params url.Values) []Reply {
	switch action {
	case ActionFamilyMenu:
		return r.familyMenu(user)

	case ActionGenerateInvite:
		code, err := r.invites.Create(user.ID)
		if err != nil {
			return r.errorReply(err)
		}
		return text(fmt.Sprintf(
			"🔗 Your binding code is:\n\n%s\n\nHave your family member send me \"bind %s\" within %d minutes.",
			code, code, int(profile.InviteTTL.Minutes())))

	case ActionConfirmUnbind:
		boundUserID := params.Get("user_id")
		binding, err := r.profiles.BindingBetween(user.ID, boundUserID)
		if err != nil {
			return r.errorReply(err)
		}
		if binding == nil || binding.InviterID != user.ID {
			return text("I couldn't find that binding.")
		}
		return confirmPrompt(
			fmt.Sprintf("⚠️ Unbind %s? Their reminders and health records under this binding will be deleted.", binding.RelationType),
			pb(ActionExecuteUnbind, "user_id", boundUserID),
		)

	case ActionExecuteUnbind:
		removed, err := r.profiles.Unbind(user.ID, params.Get("user_id"))
		if err != nil {
			return r.errorReply(err)
		}
		return text(fmt.Sprintf("✂️ Binding removed, along with %d reminder(s).", removed))

	case ActionQueryFamily:
		return r.familyReminders(user)
	}
	return r.helpReply()
}

func (r *Router) handleRecognitionAction(user *profile.User, action Action, params url.Values) []Reply {
	switch action {
	case ActionScanPrescription:
		member := params.Get("member")
		if member == "" {
			return r.selectMemberFor(user, ActionScanPrescription, "Who is this prescription for?")
		}
		if err := r.states.SetFlow(user.ID, flowAwaitPrescriptionImage, member); err != nil {
			return r.errorReply(err)
		}
		return text(fmt.Sprintf("📷 Send me a photo of %s's prescription.", member))

	case ActionConfirmSavePrescription:
		return r.savePrescriptionDraft(user)

	case ActionScanPill:
		return r.startPillScan(user)

	case ActionCancelTask:
		r.clearState(user.ID)
		return text("Operation cancelled.")
	}
	return r.helpReply()
}

func (r *Router) handleSettingsAction(user *profile.User, action Action) []Reply {
	switch action {
	case ActionSettingsMenu:
		return r.settingsMenu(user)
	case ActionShowInstructions:
		return text("📖 Quick guide:\n" +
			"• \"menu\" — everything in one place\n" +
			"• \"scan prescription\" — photo in, reminders out\n" +
			"• \"bind CODE\" — link a family member's account\n" +
			"• Send a member's name to see their reminders\n" +
			"• \"cancel\" — abort whatever we're doing")
	}
	return r.helpReply()
}

func (r *Router) handleHealthAction(user *profile.User, action Action, params url.Values) []Reply {
	switch action {
	case ActionHealthRecord:
		member := params.Get("member")
		if member == "" {
			return r.selectMemberFor(user, ActionHealthRecord, "Whose vitals are you recording?")
		}
		if err := r.states.SetFlow(user.ID, flowAwaitVitals, member); err != nil {
			return r.errorReply(err)
		}
		return text("📝 Send the measurement, e.g. \"blood pressure 120 80\", \"blood sugar 95\" or \"weight 62.5 kg\".")

	case ActionHealthHistory:
		member := params.Get("member")
		if member == "" {
			return r.selectMemberFor(user, ActionHealthHistory, "Whose history would you like to see?")
		}
		return r.healthHistory(user, member)
	}
	return r.helpReply()
}

// confirmPrompt renders a two-phase confirmation: the destructive action is
// only reachable through the embedded yes-button payload.
func confirmPrompt(question, executeData string) []Reply {
	return []Reply{{
		Text: question,
		Buttons: []Button{
			{Label: "✅ Yes", Data: executeData},
			{Label: "❌ No", Data: pb(ActionCancelTask)},
		},
	}}
}

func (r *Router) deletableMemberButtons(user *profile.User) []Reply {
	members, err := r.profiles.DeletableMembers(user.ID)
	if err != nil {
		return r.errorReply(err)
	}
	if len(members) == 0 {
		return text("There's nobody you can remove. Bound family members must be unbound from the family menu first.")
	}
	buttons := make([]Button, 0, len(members))
	for _, m := range members {
		buttons = append(buttons, Button{
			Label: m.Name,
			Data:  pb(ActionConfirmDeleteMember, "member_id", m.ID),
		})
	}
	return []Reply{{Text: "Who would you like to remove?", Buttons: buttons}}
}

func (r *Router) reminderFormLink(user *profile.User, memberName string) []Reply {
	if memberName == "" {
		return r.selectMemberFor(user, ActionReminderForm, "Who is the reminder for?")
	}
	token, err := r.tokens.Mint(user.ID, memberName)
	if err != nil {
		return r.errorReply(err)
	}
	link := r.formBaseURL + "?token=" + url.QueryEscape(token)
	return text(fmt.Sprintf("📝 Fill in the reminder details for %s here:\n%s", memberName, link))
}

func (r *Router) savePrescriptionDraft(user *profile.User) []Reply {
	state, err := r.states.Get(user.ID)
	if err != nil {
		return r.errorReply(err)
	}
	if state == nil || state.Flow != flowPrescriptionDraft {
		return text("There's no scanned prescription waiting. Start with \"scan prescription\".")
	}

	var draft prescriptionDraft
	if err := state.Draft(&draft); err != nil {
		r.clearState(user.ID)
		return text("The scanned prescription could not be restored. Please scan it again.")
	}

	entries := make(map[string]reminder.Fields, len(draft.Drugs))
	for _, d := range draft.Drugs {
		notes := ""
		if draft.ClinicName != "" {
			notes = "From prescription, " + draft.ClinicName
		}
		entries[d.DrugName] = reminder.Fields{
			DoseQuantity: d.DoseQuantity,
			Frequency:    d.Frequency,
			Notes:        notes,
			TimeSlots:    d.TimeSlots,
		}
	}
	saved, err := r.reminders.UpsertBatch(user.ID, draft.Member, entries)
	if err != nil {
		return r.errorReply(err)
	}
	r.clearState(user.ID)
	return text(fmt.Sprintf("✅ Saved %d reminder(s) for %s from the prescription.", saved, draft.Member))
}

func (r *Router) familyReminders(user *profile.User) []Reply {
	bindings, err := r.profiles.Bindings(user.ID)
	if err != nil {
		return r.errorReply(err)
	}
	if len(bindings) == 0 {
		return text("You have no family bindings yet.")
	}

	var b strings.Builder
	b.WriteString("👪 Family reminders:\n")
	for _, binding := range bindings {
		reminders, err := r.reminders.List(user.ID, binding.RelationType)
		if err != nil {
			return r.errorReply(err)
		}
		fmt.Fprintf(&b, "\n%s:\n", binding.RelationType)
		if len(reminders) == 0 {
			b.WriteString("  (none)\n")
			continue
		}
		for _, rem := range reminders {
			fmt.Fprintf(&b, "  • %s (⏰ %s)\n", rem.DrugName, formatSlots(rem.Slots()))
		}
	}
	return text(b.String())
}

func (r *Router) healthHistory(user *profile.User, memberName string) []Reply {
	logs, err := r.healthLogs.LogsForMember(user.ID, memberName)
	if err != nil {
		return r.errorReply(err)
	}
	if len(logs) == 0 {
		return text(fmt.Sprintf("No health records for %s yet.", memberName))
	}

	const maxShown = 10
	var b strings.Builder
	fmt.Fprintf(&b, "📈 Latest records for %s:\n", memberName)
	for i, log := range logs {
		if i == maxShown {
			fmt.Fprintf(&b, "… and %d more.\n", len(logs)-maxShown)
			break
		}
		fmt.Fprintf(&b, "%s — %s\n",
			log.RecordedAt.Format("01/02 15:04"),
			strings.ReplaceAll(formatVitals(&log), "\n", ", "))
	}
	return text(b.String())
}
