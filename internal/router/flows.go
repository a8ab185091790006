package router

import (
	"context"
	"fmt"
	"strings"

	"carelink/internal/convstate"
	apperrors "carelink/internal/errors"
	"carelink/internal/health"
	"carelink/internal/profile"
	"carelink/internal/recognize"
	"carelink/internal/reminder"
	"go.uber.org/zap"
)

// prescriptionDraft is the complex-state payload between a successful scan
// and the user's save confirmation.
type prescriptionDraft struct {
	Member     string                `json:"member"`
	Drugs      []recognize.DrugEntry `json:"drugs"`
	ClinicName string                `json:"clinic_name"`
	VisitDate  string                `json:"visit_date"`
}

// voiceReminderDraft holds a parsed medication command that still needs a
// target member.
type voiceReminderDraft struct {
	DrugName     string   `json:"drug_name"`
	DoseQuantity string   `json:"dose_quantity"`
	Frequency    string   `json:"frequency"`
	TimeSlots    []string `json:"time_slots"`
}

// continueFlow handles a text message while a flow is active. Cancel has
// already been handled by the caller.
func (r *Router) continueFlow(ctx context.Context, user *profile.User, state *convstate.State, msg string) []Reply {
	switch state.Flow {
	case flowAwaitMemberName:
		return r.addMemberFromText(user, msg)
	case flowRenameMember:
		return r.renameMemberFromText(user, state.Arg, msg)
	case flowCustomRelation:
		return r.completeBind(user, state.Arg, msg)
	case flowAwaitVitals:
		return r.recordVitalsFromText(user, state.Arg, msg)
	case flowAwaitReminderMember:
		return r.completeVoiceReminder(user, state, msg)
	case flowAwaitPrescriptionImage, flowAwaitPillImage:
		return text("I'm waiting for a photo. Send one, or type \"cancel\".")
	case flowPrescriptionDraft:
		return text("Please use the buttons to save or discard the scanned prescription, or type \"cancel\".")
	default:
		// Unknown flow token, likely from an older version. Start fresh.
		r.logger.Warn("unknown conversation flow", zap.String("flow", state.Flow), zap.String("user", user.ID))
		r.clearState(user.ID)
		return r.helpReply()
	}
}

func (r *Router) addMemberFromText(user *profile.User, name string) []Reply {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, profile.SelfMemberName) {
		return text("Please send a valid member name, or type \"cancel\".")
	}

	member, err := r.profiles.AddMember(user.ID, name)
	if err != nil {
		// Duplicate names keep the flow alive so the user can try another.
		return r.errorReply(err)
	}
	r.clearState(user.ID)
	return []Reply{{
		Text: fmt.Sprintf("✅ Added %s. You can now set up their reminders.", member.Name),
		Buttons: []Button{
			{Label: "💊 View reminders", Data: pb(ActionViewReminders, "member", member.Name)},
			{Label: "📝 Add via form", Data: pb(ActionReminderForm, "member", member.Name)},
		},
	}}
}

func (r *Router) renameMemberFromText(user *profile.User, memberID, newName string) []Reply {
	newName = strings.TrimSpace(newName)
	if newName == "" || strings.EqualFold(newName, profile.SelfMemberName) {
		return text("Please send a valid new name, or type \"cancel\".")
	}

	member, err := r.profiles.MemberByID(user.ID, memberID)
	if err != nil {
		r.clearState(user.ID)
		return r.errorReply(err)
	}

	if _, err := r.profiles.RenameMember(user.ID, member.Name, newName); err != nil {
		return r.errorReply(err)
	}
	r.clearState(user.ID)
	return text(fmt.Sprintf("✅ Renamed %s to %s. All their reminders and records moved along.", member.Name, newName))
}

func (r *Router) redeemInvite(user *profile.User, code string) []Reply {
	if code == "" {
		return text("Please send the code as \"bind CODE\".")
	}

	inviterID, err := r.invites.Redeem(code)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrNotFound.Code {
			return text("That binding code is invalid or has expired. Ask your family member for a fresh one.")
		}
		return r.errorReply(err)
	}
	if inviterID == user.ID {
		return text("You cannot redeem your own binding code.")
	}

	if existing, err := r.profiles.BindingBetween(inviterID, user.ID); err != nil {
		return r.errorReply(err)
	} else if existing != nil {
		return text(fmt.Sprintf("⚠️ You are already bound to this account as %q.", existing.RelationType))
	}

	if err := r.states.SetFlow(user.ID, flowCustomRelation, inviterID); err != nil {
		return r.errorReply(err)
	}
	return text("Code accepted! What should they call you? Reply with a relationship name, e.g. \"Mom\".")
}

func (r *Router) completeBind(user *profile.User, inviterID, relation string) []Reply {
	relation = strings.TrimSpace(relation)
	if relation == "" || strings.EqualFold(relation, profile.SelfMemberName) {
		return text("Please send a short relationship name, e.g. \"Mom\", or type \"cancel\".")
	}

	if err := r.profiles.Bind(inviterID, user.ID, user.DisplayName, relation); err != nil {
		switch apperrors.GetCode(err) {
		case apperrors.ErrDuplicateName.Code:
			return text(fmt.Sprintf("They already have a member named %q. Please pick a different name.", relation))
		default:
			r.clearState(user.ID)
			return r.errorReply(err)
		}
	}
	r.clearState(user.ID)
	return text(fmt.Sprintf("🎉 You are now bound as %q. They can manage reminders for you, and you'll receive them directly.", relation))
}

func (r *Router) recordVitalsFromText(user *profile.User, memberName, msg string) []Reply {
	log := r.vitalsParser.Parse(msg)
	if log == nil {
		return text("I couldn't read a measurement from that. Try something like \"blood pressure 120 80\" or \"weight 62.5 kg\", or type \"cancel\".")
	}
	if memberName == "" {
		memberName = profile.SelfMemberName
	}
	replies := r.recordVitals(user, memberName, log)
	r.clearState(user.ID)
	return replies
}

func (r *Router) recordVitals(user *profile.User, memberName string, log *health.Log) []Reply {
	log.RecorderID = user.ID
	log.TargetName = memberName
	if err := r.healthLogs.AddLog(log); err != nil {
		return r.errorReply(err)
	}
	return text(fmt.Sprintf("✅ Recorded for %s:\n%s", memberName, formatVitals(log)))
}

func formatVitals(log *health.Log) string {
	var parts []string
	if log.Systolic != nil && log.Diastolic != nil {
		parts = append(parts, fmt.Sprintf("🩺 Blood pressure %d/%d", *log.Systolic, *log.Diastolic))
	}
	if log.BloodSugar != nil {
		parts = append(parts, fmt.Sprintf("🩸 Blood sugar %.1f", *log.BloodSugar))
	}
	if log.BloodOxygen != nil {
		parts = append(parts, fmt.Sprintf("💨 Blood oxygen %.0f%%", *log.BloodOxygen))
	}
	if log.Temperature != nil {
		parts = append(parts, fmt.Sprintf("🌡️ Temperature %.1f°C", *log.Temperature))
	}
	if log.Weight != nil {
		parts = append(parts, fmt.Sprintf("⚖️ Weight %.1f kg", *log.Weight))
	}
	return strings.Join(parts, "\n")
}

// startVoiceReminder saves a parsed medication command and, unless the
// target is unambiguous, asks who it is for.
func (r *Router) startVoiceReminder(user *profile.User, parsed *recognize.ParsedMedication) []Reply {
	draft := voiceReminderDraft{
		DrugName:     parsed.DrugName,
		DoseQuantity: parsed.DoseQuantity,
		Frequency:    parsed.Frequency,
		TimeSlots:    parsed.TimeSlots,
	}

	if parsed.TargetMember != "" {
		member, err := r.profiles.MemberByName(user.ID, parsed.TargetMember)
		if err != nil {
			return r.errorReply(err)
		}
		if member == nil {
			return text(fmt.Sprintf("I don't know a member named %q. Add them first via the reminder menu.", parsed.TargetMember))
		}
		return r.saveVoiceReminder(user, member.Name, &draft)
	}

	members, err := r.profiles.Members(user.ID)
	if err != nil {
		return r.errorReply(err)
	}
	if len(members) <= 1 {
		return r.saveVoiceReminder(user, profile.SelfMemberName, &draft)
	}

	if err := r.states.SetDraft(user.ID, flowAwaitReminderMember, draft); err != nil {
		return r.errorReply(err)
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return text(fmt.Sprintf("Who is the %s reminder for? Reply with one of: %s",
		draft.DrugName, strings.Join(names, ", ")))
}

func (r *Router) completeVoiceReminder(user *profile.User, state *convstate.State, msg string) []Reply {
	var draft voiceReminderDraft
	if err := state.Draft(&draft); err != nil {
		r.clearState(user.ID)
		return text("I lost track of that reminder. Please repeat the voice command.")
	}

	name := strings.TrimSpace(msg)
	member, err := r.profiles.MemberByName(user.ID, name)
	if err != nil {
		return r.errorReply(err)
	}
	if member == nil {
		return text(fmt.Sprintf("I don't know a member named %q. Please reply with an existing member, or type \"cancel\".", name))
	}

	r.clearState(user.ID)
	return r.saveVoiceReminder(user, member.Name, &draft)
}

func (r *Router) saveVoiceReminder(user *profile.User, memberName string, draft *voiceReminderDraft) []Reply {
	_, err := r.reminders.Upsert(user.ID, memberName, draft.DrugName, reminder.Fields{
		DoseQuantity: draft.DoseQuantity,
		Frequency:    draft.Frequency,
		TimeSlots:    draft.TimeSlots,
	})
	if err != nil {
		return r.errorReply(err)
	}
	return text(fmt.Sprintf("✅ Reminder saved!\n💊 %s\n👤 For %s\n⏰ %s",
		draft.DrugName, memberName, formatSlots(draft.TimeSlots)))
}

// recognizePrescription runs the scanner on the photo and parks the result
// as a draft pending explicit confirmation. Nothing is persisted yet.
func (r *Router) recognizePrescription(ctx context.Context, user *profile.User, memberName string, image []byte) []Reply {
	result, err := r.prescriptions.RecognizePrescription(ctx, image)
	if err != nil {
		// Keep the awaiting-image state so the user can just resend.
		return text("Sorry, I could not read that prescription. Please send a clearer photo, or type \"cancel\".")
	}
	if len(result.Drugs) == 0 {
		return text("I couldn't find any medications on that prescription. Please try another photo, or type \"cancel\".")
	}

	draft := prescriptionDraft{
		Member:     memberName,
		Drugs:      result.Drugs,
		ClinicName: result.ClinicName,
		VisitDate:  result.VisitDate,
	}
	if err := r.states.SetDraft(user.ID, flowPrescriptionDraft, draft); err != nil {
		return r.errorReply(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📄 I read %d medication(s)", len(result.Drugs))
	if result.ClinicName != "" {
		fmt.Fprintf(&b, " from %s", result.ClinicName)
	}
	b.WriteString(":\n")
	for i, d := range result.Drugs {
		fmt.Fprintf(&b, "%d. %s", i+1, d.DrugName)
		if d.DoseQuantity != "" {
			fmt.Fprintf(&b, " — %s", d.DoseQuantity)
		}
		if len(d.TimeSlots) > 0 {
			fmt.Fprintf(&b, " (⏰ %s)", formatSlots(d.TimeSlots))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Save these as reminders for %s?", memberName)

	return []Reply{{
		Text: b.String(),
		Buttons: []Button{
			{Label: "✅ Save all", Data: pb(ActionConfirmSavePrescription)},
			{Label: "❌ Discard", Data: pb(ActionCancelTask)},
		},
	}}
}

func (r *Router) recognizePills(ctx context.Context, user *profile.User, image []byte) []Reply {
	pills, err := r.pills.RecognizePills(ctx, image)
	if err != nil {
		return text("Sorry, I could not identify that pill. Please send a clearer photo, or type \"cancel\".")
	}
	r.clearState(user.ID)
	if len(pills) == 0 {
		return text("I couldn't match that pill against anything I know.")
	}

	var b strings.Builder
	b.WriteString("🔍 Possible matches:\n")
	for i, p := range pills {
		fmt.Fprintf(&b, "%d. %s", i+1, p.DrugName)
		if p.MainUse != "" {
			fmt.Fprintf(&b, " — %s", p.MainUse)
		}
		if p.Shape != "" || p.Color != "" {
			fmt.Fprintf(&b, " (%s %s)", p.Color, p.Shape)
		}
		b.WriteString("\n")
	}
	b.WriteString("⚠️ Always confirm with a pharmacist before taking anything.")
	return text(b.String())
}
