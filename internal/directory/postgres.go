package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/goalbot/core/logger"
	"github.com/m3rciful/goalbot/internal/domain"
	"log/slog"
)

// Postgres is the chat account directory backed by the web application database.
//
// Accounts are created unverified; the web application links them to a user
// when the owner confirms the one-time code there. The bot only reads the link
// and rotates codes, it never deletes accounts.
type Postgres struct {
	db    *sqlx.DB
	codes CodeGenerator
}

// NewPostgres constructs the directory over an open connection pool.
func NewPostgres(db *sqlx.DB, codes CodeGenerator) *Postgres {
	return &Postgres{db: db, codes: codes}
}

const accountColumns = `id, tg_chat_id, COALESCE(tg_username, '') AS tg_username, user_id, verification_code`

// FindByChat returns the account for a chat id or domain.ErrNotFound.
func (p *Postgres) FindByChat(ctx context.Context, chatID int64) (*domain.ChatAccount, error) {
	var acc domain.ChatAccount
	query := `SELECT ` + accountColumns + ` FROM telegram_accounts WHERE tg_chat_id = $1`
	if err := p.db.GetContext(ctx, &acc, query, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find account by chat %d: %w", chatID, err)
	}
	return &acc, nil
}

// Register creates an unverified account for a previously unknown chat and
// attaches a fresh one-time verification code.
func (p *Postgres) Register(ctx context.Context, chatID int64, username string) (*domain.ChatAccount, error) {
	code, err := p.codes.Next("")
	if err != nil {
		return nil, err
	}

	var acc domain.ChatAccount
	query := `
		INSERT INTO telegram_accounts (tg_chat_id, tg_username, verification_code)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING ` + accountColumns
	if err := p.db.GetContext(ctx, &acc, query, chatID, username, code); err != nil {
		return nil, fmt.Errorf("register account for chat %d: %w", chatID, err)
	}

	logger.Info(ctx, "directory", "account.registered",
		slog.Int64("account_id", acc.ID),
		slog.String("username", acc.DisplayName()),
	)
	return &acc, nil
}

// RotateCode replaces the account's verification code with a new one,
// invalidating the previous value, and returns the new code.
func (p *Postgres) RotateCode(ctx context.Context, acc *domain.ChatAccount) (string, error) {
	if acc == nil {
		return "", domain.ErrNotFound
	}
	code, err := p.codes.Next(acc.VerificationCode.String)
	if err != nil {
		return "", err
	}

	res, err := p.db.ExecContext(ctx,
		`UPDATE telegram_accounts SET verification_code = $1 WHERE id = $2`,
		code, acc.ID,
	)
	if err != nil {
		return "", fmt.Errorf("rotate code for account %d: %w", acc.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", domain.ErrNotFound
	}

	acc.VerificationCode = sql.NullString{String: code, Valid: true}
	logger.Debug(ctx, "directory", "code.rotated",
		slog.Int64("account_id", acc.ID),
	)
	return code, nil
}
