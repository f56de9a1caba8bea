// Package session implements the conversational engine of the bot: a
// finite-state machine over chat input, driven by a single long-polling loop.
//
// The machine itself is pure. Step maps the current session and one resolved
// inbound event to the next session plus a list of effects; the engine
// interprets effects against the directory, the goal store, and the transport.
package session

import (
	"strings"

	"github.com/m3rciful/goalbot/internal/domain"
)

// State identifies a step of the conversation.
type State string

const (
	// StateUnregistered is entered on contact from an unknown chat while the
	// account is being created; it immediately advances to verification.
	StateUnregistered State = "unregistered"
	// StatePendingVerification waits for the web application to link the
	// account and for the user to send /confirm.
	StatePendingVerification State = "pending_verification"
	// StateIdle is the main menu for verified users.
	StateIdle State = "idle"
	// StateSelectingCategory waits for a category title during goal creation.
	StateSelectingCategory State = "selecting_category"
	// StateEnteringGoalTitle waits for the title of the new goal.
	StateEnteringGoalTitle State = "entering_goal_title"
)

// Bot commands understood by the machine.
const (
	cmdStart   = "/start"
	cmdConfirm = "/confirm"
	cmdCancel  = "/cancel"
	cmdGoals   = "/goals"
	cmdCreate  = "/create"
)

// Session is the engine's complete mutable state, threaded explicitly
// through the loop. Exactly one session exists per engine instance.
type Session struct {
	State State
	// Cursor is the next update offset to request; it only ever grows.
	// It is held in memory only: a restart re-polls from offset 0 and
	// handlers tolerate the resulting redelivery.
	Cursor int64
	// IdleCycles counts consecutive polling cycles without events while a
	// create dialog is active; reaching the limit expires the dialog.
	IdleCycles int
	// PendingCategory is non-nil only in StateEnteringGoalTitle.
	PendingCategory *domain.Category
	// LastChatID retains the chat of the most recent inbound message for
	// timeout notifications.
	LastChatID int64
}

// NewSession returns the initial session: idle, polling from offset 0.
func NewSession() Session {
	return Session{State: StateIdle}
}

// Input is one inbound message with its lookups already resolved: the chat's
// account (nil when unknown) and, while selecting a category, the exact-title
// match within the account's writable scope (nil when nothing matched).
type Input struct {
	ChatID   int64
	Username string
	Text     string
	Account  *domain.ChatAccount
	Category *domain.Category
}

// Effect is an action the engine performs after a transition.
type Effect interface{ isEffect() }

// Keyboard selects a canned reply keyboard for a Reply effect.
type Keyboard int

const (
	// KeyboardNone sends no reply markup.
	KeyboardNone Keyboard = iota
	// KeyboardMain offers /goals and /create.
	KeyboardMain
	// KeyboardConfirm offers /confirm.
	KeyboardConfirm
)

// Reply sends a pre-rendered message.
type Reply struct {
	ChatID   int64
	Text     string
	Keyboard Keyboard
	HTML     bool
}

// RegisterAccount creates an unverified account for an unknown chat and
// sends the welcome message with its verification code.
type RegisterAccount struct {
	ChatID   int64
	Username string
}

// RotateCode replaces the account's one-time code and resends it.
type RotateCode struct {
	Account *domain.ChatAccount
}

// ListGoals sends the user's goals, one message per goal, or a "no goals" notice.
type ListGoals struct {
	Account *domain.ChatAccount
}

// ListCategories prompts for a category with a keyboard of writable titles.
type ListCategories struct {
	Account *domain.ChatAccount
}

// CreateGoal stores a new goal and sends the confirmation link.
type CreateGoal struct {
	Account  *domain.ChatAccount
	Category *domain.Category
	Title    string
}

func (Reply) isEffect()           {}
func (RegisterAccount) isEffect() {}
func (RotateCode) isEffect()      {}
func (ListGoals) isEffect()       {}
func (ListCategories) isEffect()  {}
func (CreateGoal) isEffect()      {}

// Step is the transition function of the machine. It never touches the
// outside world, which keeps every row of the transition table testable
// without a live poll loop.
func Step(s Session, in Input) (Session, []Effect) {
	s.LastChatID = in.ChatID

	// Unknown chat in any state: abandon whatever was in progress and
	// register. The register effect advances to verification once the
	// account exists, so a failed registration is retried on next contact.
	if in.Account == nil {
		s.State = StateUnregistered
		s.PendingCategory = nil
		return s, []Effect{RegisterAccount{ChatID: in.ChatID, Username: in.Username}}
	}

	// Unlinked accounts are routed through verification regardless of the
	// previous state; the triggering event is processed under the
	// verification rules rather than dropped.
	if !in.Account.Linked() || s.State == StatePendingVerification || s.State == StateUnregistered {
		return stepVerification(s, in)
	}

	switch s.State {
	case StateIdle:
		return stepIdle(s, in)
	case StateSelectingCategory:
		return stepSelectingCategory(s, in)
	case StateEnteringGoalTitle:
		return stepEnteringGoalTitle(s, in)
	}

	// Unreachable while the State constants stay in sync with this switch.
	s.State = StateIdle
	return s, nil
}

func stepVerification(s Session, in Input) (Session, []Effect) {
	s.State = StatePendingVerification
	s.PendingCategory = nil

	switch {
	case in.Text == cmdConfirm && in.Account.Linked():
		s.State = StateIdle
		return s, []Effect{Reply{
			ChatID:   in.ChatID,
			Text:     msgVerified(in.Account.DisplayName()),
			Keyboard: KeyboardMain,
		}}
	case in.Text == cmdConfirm:
		// Confirmed in chat before the web application linked the account:
		// rotate so a guessed code cannot be retried silently.
		return s, []Effect{RotateCode{Account: in.Account}}
	case isDeniedCommand(in.Text):
		return s, []Effect{Reply{ChatID: in.ChatID, Text: msgCommandsUnavailable}}
	default:
		return s, []Effect{RotateCode{Account: in.Account}}
	}
}

func stepIdle(s Session, in Input) (Session, []Effect) {
	switch in.Text {
	case cmdGoals:
		return s, []Effect{ListGoals{Account: in.Account}}
	case cmdCreate:
		s.State = StateSelectingCategory
		s.IdleCycles = 0
		return s, []Effect{ListCategories{Account: in.Account}}
	default:
		return s, []Effect{Reply{ChatID: in.ChatID, Text: msgInvalidCommand, Keyboard: KeyboardMain}}
	}
}

func stepSelectingCategory(s Session, in Input) (Session, []Effect) {
	if in.Text == cmdCancel {
		s.State = StateIdle
		s.IdleCycles = 0
		return s, []Effect{Reply{ChatID: in.ChatID, Text: msgCancelled, Keyboard: KeyboardMain}}
	}
	if in.Category != nil {
		s.State = StateEnteringGoalTitle
		s.PendingCategory = in.Category
		s.IdleCycles = 0
		return s, []Effect{Reply{
			ChatID: in.ChatID,
			Text:   msgCategoryChosen(in.Category.Title),
			HTML:   true,
		}}
	}
	return s, []Effect{Reply{
		ChatID: in.ChatID,
		Text:   msgCategoryNotFound(in.Text),
		HTML:   true,
	}}
}

func stepEnteringGoalTitle(s Session, in Input) (Session, []Effect) {
	category := s.PendingCategory
	s.State = StateIdle
	s.PendingCategory = nil
	s.IdleCycles = 0

	if in.Text == cmdCancel {
		return s, []Effect{Reply{ChatID: in.ChatID, Text: msgCancelled, Keyboard: KeyboardMain}}
	}
	return s, []Effect{CreateGoal{Account: in.Account, Category: category, Title: in.Text}}
}

// Expire forces an active create dialog back to the main menu. It reports
// whether a dialog was actually expired so the notification is sent exactly once.
func Expire(s Session) (Session, bool) {
	if s.State != StateSelectingCategory && s.State != StateEnteringGoalTitle {
		return s, false
	}
	s.State = StateIdle
	s.PendingCategory = nil
	s.IdleCycles = 0
	return s, true
}

// InDialog reports whether the session is inside a timeout-guarded dialog.
func (s Session) InDialog() bool {
	return s.State == StateSelectingCategory || s.State == StateEnteringGoalTitle
}

func isDeniedCommand(text string) bool {
	switch text {
	case cmdStart, cmdCancel, cmdGoals, cmdCreate:
		return true
	}
	return false
}

func isCommand(text string) bool {
	return strings.HasPrefix(text, "/")
}
