package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/goalbot/core/logger"
	"github.com/m3rciful/goalbot/internal/domain"
	"github.com/m3rciful/goalbot/internal/transport"
)

// Transport fetches inbound events by explicit offset and delivers replies.
type Transport interface {
	Poll(ctx context.Context, offset int64) ([]transport.Event, error)
	Send(ctx context.Context, out transport.Outbound) error
}

// Directory resolves and manages chat accounts.
type Directory interface {
	FindByChat(ctx context.Context, chatID int64) (*domain.ChatAccount, error)
	Register(ctx context.Context, chatID int64, username string) (*domain.ChatAccount, error)
	RotateCode(ctx context.Context, acc *domain.ChatAccount) (string, error)
}

// GoalStore queries goals and categories under the web application's
// permission model.
type GoalStore interface {
	ListGoals(ctx context.Context, acc *domain.ChatAccount) ([]domain.Goal, error)
	ListCategories(ctx context.Context, acc *domain.ChatAccount) ([]domain.Category, error)
	FindCategoryByTitle(ctx context.Context, acc *domain.ChatAccount, title string) (*domain.Category, error)
	CreateGoal(ctx context.Context, acc *domain.ChatAccount, category *domain.Category, title string, dueInDays int) (*domain.Goal, error)
}

const (
	defaultGoalDueInDays = 7
	defaultMaxIdleCycles = 3
	defaultPollRetryWait = 3 * time.Second
)

// Options configure the engine.
type Options struct {
	// AppBaseURL prefixes goal links in outbound messages, without trailing slash.
	AppBaseURL string
	// GoalDueInDays sets the due date offset for new goals; 0 -> 7.
	GoalDueInDays int
	// MaxIdleCycles is the number of consecutive eventless polling cycles
	// after which an active create dialog expires; 0 -> 3.
	MaxIdleCycles int
	// PollRetryWait is the pause after a failed poll; 0 -> 3s.
	PollRetryWait time.Duration
}

// Engine runs the polling loop. All session state lives on one goroutine;
// none of the methods are safe for concurrent use.
type Engine struct {
	transport Transport
	directory Directory
	store     GoalStore
	opts      Options
	sess      Session
}

// New assembles an engine over its three collaborators.
func New(t Transport, d Directory, s GoalStore, opts Options) *Engine {
	if opts.GoalDueInDays <= 0 {
		opts.GoalDueInDays = defaultGoalDueInDays
	}
	if opts.MaxIdleCycles <= 0 {
		opts.MaxIdleCycles = defaultMaxIdleCycles
	}
	if opts.PollRetryWait <= 0 {
		opts.PollRetryWait = defaultPollRetryWait
	}
	opts.AppBaseURL = strings.TrimRight(opts.AppBaseURL, "/")
	return &Engine{transport: t, directory: d, store: s, opts: opts, sess: NewSession()}
}

// Run polls until ctx is cancelled. Poll failures are logged and retried with
// the cursor untouched; per-event failures are logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	logger.Info(ctx, "engine", "run.start",
		slog.Int("max_idle_cycles", e.opts.MaxIdleCycles),
		slog.Int("goal_due_in_days", e.opts.GoalDueInDays),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "engine", "run.stop", slog.Int64("cursor", e.sess.Cursor))
			return ctx.Err()
		default:
		}

		batch, err := e.transport.Poll(ctx, e.sess.Cursor)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "engine", "run.stop", slog.Int64("cursor", e.sess.Cursor))
				return ctx.Err()
			}
			logger.Warn(ctx, "engine", "poll.failed",
				slog.Int64("cursor", e.sess.Cursor),
				slog.String("err", err.Error()),
			)
			e.wait(ctx, e.opts.PollRetryWait)
			continue
		}

		sawMessage := false
		for _, ev := range batch {
			// Advance before handling so a failing event is never replayed
			// within the same process; redelivery only happens on restart.
			if next := ev.ID + 1; next > e.sess.Cursor {
				e.sess.Cursor = next
			}
			if ev.Message == nil {
				continue
			}
			sawMessage = true
			e.handleEvent(ctx, ev)
		}

		e.finishCycle(ctx, sawMessage)
	}
}

// Cursor exposes the next poll offset, mainly for tests and shutdown logs.
func (e *Engine) Cursor() int64 { return e.sess.Cursor }

func (e *Engine) handleEvent(ctx context.Context, ev transport.Event) {
	msg := ev.Message
	ctx = logger.WithRID(ctx, logger.BuildRID(ev.ID, msg.ChatID))
	ctx = logger.WithEventMeta(ctx, ev.ID, msg.ChatID)
	ctx = logger.WithState(ctx, string(e.sess.State))

	in, err := e.resolveInput(ctx, msg)
	if err != nil {
		// Lookup failures drop the event; the user can resend.
		logger.Error(ctx, "engine", "event.failed",
			slog.String("text", logger.SanitizeLimit(msg.Text, 64)),
			slog.String("err", err.Error()),
		)
		return
	}

	next, effects := Step(e.sess, in)
	logger.Debug(ctx, "engine", "transition",
		slog.String("next_state", string(next.State)),
		slog.String("text", logger.SanitizeLimit(in.Text, 64)),
	)
	e.sess = next

	for _, eff := range effects {
		if err := e.apply(ctx, eff); err != nil {
			logger.Error(ctx, "engine", "effect.failed",
				slog.String("next_state", string(e.sess.State)),
				slog.String("err", err.Error()),
			)
		}
	}
}

// resolveInput performs the lookups Step needs: the chat's account and, while
// a category is being selected, the exact-title match.
func (e *Engine) resolveInput(ctx context.Context, msg *transport.Message) (Input, error) {
	in := Input{
		ChatID:   msg.ChatID,
		Username: msg.Username,
		Text:     strings.TrimSpace(msg.Text),
	}

	acc, err := e.directory.FindByChat(ctx, msg.ChatID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return Input{}, err
	default:
		in.Account = acc
	}

	if e.sess.State == StateSelectingCategory && in.Account.Linked() && !isCommand(in.Text) {
		category, err := e.store.FindCategoryByTitle(ctx, in.Account, in.Text)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return Input{}, err
		default:
			in.Category = category
		}
	}
	return in, nil
}

func (e *Engine) apply(ctx context.Context, eff Effect) error {
	switch eff := eff.(type) {
	case Reply:
		return e.send(ctx, eff.ChatID, eff.Text, keyboardRows(eff.Keyboard), eff.HTML)

	case RegisterAccount:
		acc, err := e.directory.Register(ctx, eff.ChatID, eff.Username)
		if err != nil {
			return err
		}
		// Account exists now, so the hop through the registration state ends.
		e.sess.State = StatePendingVerification
		return e.send(ctx, eff.ChatID,
			msgWelcome(acc.DisplayName(), acc.VerificationCode.String),
			confirmRows, false)

	case RotateCode:
		code, err := e.directory.RotateCode(ctx, eff.Account)
		if err != nil {
			return err
		}
		return e.send(ctx, eff.Account.ChatID, msgCodeRotated(code), confirmRows, false)

	case ListGoals:
		goals, err := e.store.ListGoals(ctx, eff.Account)
		if err != nil {
			return err
		}
		if len(goals) == 0 {
			return e.send(ctx, eff.Account.ChatID, msgNoGoals, mainMenuRows, false)
		}
		for i := range goals {
			if err := e.send(ctx, eff.Account.ChatID,
				msgGoalItem(e.opts.AppBaseURL, &goals[i]), mainMenuRows, true); err != nil {
				return err
			}
		}
		return nil

	case ListCategories:
		categories, err := e.store.ListCategories(ctx, eff.Account)
		if err != nil {
			return err
		}
		return e.send(ctx, eff.Account.ChatID, msgChooseCategory, categoryRows(categories), false)

	case CreateGoal:
		goal, err := e.store.CreateGoal(ctx, eff.Account, eff.Category, eff.Title, e.opts.GoalDueInDays)
		if err != nil {
			if sendErr := e.send(ctx, eff.Account.ChatID, msgGoalCreateFailed, mainMenuRows, false); sendErr != nil {
				return errors.Join(err, sendErr)
			}
			return err
		}
		return e.send(ctx, eff.Account.ChatID,
			msgGoalCreated(e.opts.AppBaseURL, goal), mainMenuRows, true)
	}
	return nil
}

func (e *Engine) send(ctx context.Context, chatID int64, text string, keyboard [][]string, asHTML bool) error {
	return e.transport.Send(ctx, transport.Outbound{
		ChatID:   chatID,
		Text:     text,
		Keyboard: keyboard,
		HTML:     asHTML,
	})
}

// finishCycle accounts one polling cycle against the dialog timeout. Cycles
// that delivered any message do not count; qualifying events already reset
// the counter inside Step.
func (e *Engine) finishCycle(ctx context.Context, sawMessage bool) {
	if !e.sess.InDialog() {
		e.sess.IdleCycles = 0
		return
	}
	if sawMessage {
		return
	}

	e.sess.IdleCycles++
	if e.sess.IdleCycles < e.opts.MaxIdleCycles {
		return
	}

	chatID := e.sess.LastChatID
	next, expired := Expire(e.sess)
	e.sess = next
	if !expired || chatID == 0 {
		return
	}

	logger.Info(ctx, "engine", "dialog.expired",
		slog.Int64("chat_id", chatID),
		slog.Int("idle_cycles", e.opts.MaxIdleCycles),
	)
	if err := e.send(ctx, chatID, msgSessionExpired, mainMenuRows, false); err != nil {
		logger.Error(ctx, "engine", "effect.failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

func (e *Engine) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
