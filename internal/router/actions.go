package router

// Action names one postback operation. The vocabulary is partitioned into
// disjoint category sets; dispatch looks up the category first, then switches
// within it, so each subsystem owns its own action list and new ones can be
// added without touching the others.
type Action string

// Reminder and member management actions.
const (
	ActionReminderMenu          Action = "reminder_menu"
	ActionAddMember             Action = "add_member_profile"
	ActionRenameMember          Action = "rename_member_profile"
	ActionConfirmDeleteMember   Action = "confirm_delete_member_profile"
	ActionExecuteDeleteMember   Action = "execute_delete_member_profile"
	ActionViewReminders         Action = "view_reminders"
	ActionReminderForm          Action = "reminder_form"
	ActionConfirmDeleteReminder Action = "confirm_delete_reminder"
	ActionExecuteDeleteReminder Action = "execute_delete_reminder"
	ActionConfirmClearReminders Action = "confirm_clear_reminders"
	ActionExecuteClearReminders Action = "execute_clear_reminders"
)

// Family binding actions.
const (
	ActionFamilyMenu     Action = "family_menu"
	ActionGenerateInvite Action = "gen_invite_code"
	ActionConfirmUnbind  Action = "confirm_unbind"
	ActionExecuteUnbind  Action = "execute_unbind"
	ActionQueryFamily    Action = "query_family_reminders"
)

// Recognition actions.
const (
	ActionScanPrescription        Action = "scan_prescription"
	ActionConfirmSavePrescription Action = "confirm_save_prescription"
	ActionScanPill                Action = "scan_pill"
	ActionCancelTask              Action = "cancel_task"
)

// Settings actions.
const (
	ActionSettingsMenu     Action = "settings_menu"
	ActionShowInstructions Action = "show_instructions"
)

// Health actions.
const (
	ActionHealthRecord  Action = "health_record"
	ActionHealthHistory Action = "health_history"
)

type category int

const (
	categoryUnknown category = iota
	categoryReminder
	categoryBinding
	categoryRecognition
	categorySettings
	categoryHealth
)

var actionCategories = func() map[Action]category {
	sets := map[category][]Action{
		categoryReminder: {
			ActionReminderMenu, ActionAddMember, ActionRenameMember,
			ActionConfirmDeleteMember, ActionExecuteDeleteMember,
			ActionViewReminders, ActionReminderForm,
			ActionConfirmDeleteReminder, ActionExecuteDeleteReminder,
			ActionConfirmClearReminders, ActionExecuteClearReminders,
		},
		categoryBinding: {
			ActionFamilyMenu, ActionGenerateInvite,
			ActionConfirmUnbind, ActionExecuteUnbind, ActionQueryFamily,
		},
		categoryRecognition: {
			ActionScanPrescription, ActionConfirmSavePrescription,
			ActionScanPill, ActionCancelTask,
		},
		categorySettings: {
			ActionSettingsMenu, ActionShowInstructions,
		},
		categoryHealth: {
			ActionHealthRecord, ActionHealthHistory,
		},
	}
	m := make(map[Action]category)
	for cat, actions := range sets {
		for _, a := range actions {
			m[a] = cat
		}
	}
	return m
}()

func categoryOf(a Action) category {
	return actionCategories[a]
}
