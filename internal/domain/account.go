package domain

import "database/sql"

// ChatAccount links a Telegram chat to a web application user.
//
// An account is created on first contact and stays unverified until the web
// application attaches a user to it. The one-time verification code is rotated
// by the bot while the account remains unverified; the bot never deletes
// accounts.
type ChatAccount struct {
	ID               int64          `db:"id"`
	ChatID           int64          `db:"tg_chat_id"`
	Username         string         `db:"tg_username"`
	UserID           sql.NullInt64  `db:"user_id"`
	VerificationCode sql.NullString `db:"verification_code"`
}

// Linked reports whether the account has been attached to a verified user.
func (a *ChatAccount) Linked() bool {
	return a != nil && a.UserID.Valid
}

// DisplayName returns the Telegram username or a fallback for accounts
// created from chats without one.
func (a *ChatAccount) DisplayName() string {
	if a == nil || a.Username == "" {
		return AnonymousName
	}
	return a.Username
}

// AnonymousName is used when Telegram provides no username for a chat.
const AnonymousName = "Anonymous"
