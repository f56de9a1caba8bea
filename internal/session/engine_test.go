package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/goalbot/internal/domain"
	"github.com/m3rciful/goalbot/internal/transport"
)

// pollStep scripts one Poll call of the fake transport.
type pollStep struct {
	events []transport.Event
	err    error
}

// fakeTransport replays a script of poll outcomes and cancels the run context
// once the script is exhausted, so Engine.Run terminates deterministically.
type fakeTransport struct {
	steps   []pollStep
	cancel  context.CancelFunc
	offsets []int64
	sent    []transport.Outbound
	sendErr error
}

func (f *fakeTransport) Poll(_ context.Context, offset int64) ([]transport.Event, error) {
	call := len(f.offsets)
	f.offsets = append(f.offsets, offset)
	if call >= len(f.steps) {
		f.cancel()
		return nil, context.Canceled
	}
	return f.steps[call].events, f.steps[call].err
}

func (f *fakeTransport) Send(_ context.Context, out transport.Outbound) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, out)
	return nil
}

type fakeDirectory struct {
	accounts   map[int64]*domain.ChatAccount
	registered []int64
	rotations  int
	findErr    error
}

func (f *fakeDirectory) FindByChat(_ context.Context, chatID int64) (*domain.ChatAccount, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	acc, ok := f.accounts[chatID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return acc, nil
}

func (f *fakeDirectory) Register(_ context.Context, chatID int64, username string) (*domain.ChatAccount, error) {
	acc := &domain.ChatAccount{
		ID:               int64(len(f.accounts) + 1),
		ChatID:           chatID,
		Username:         username,
		VerificationCode: sql.NullString{String: "code01", Valid: true},
	}
	if f.accounts == nil {
		f.accounts = map[int64]*domain.ChatAccount{}
	}
	f.accounts[chatID] = acc
	f.registered = append(f.registered, chatID)
	return acc, nil
}

func (f *fakeDirectory) RotateCode(_ context.Context, acc *domain.ChatAccount) (string, error) {
	f.rotations++
	code := fmt.Sprintf("code%02d", f.rotations+1)
	acc.VerificationCode = sql.NullString{String: code, Valid: true}
	return code, nil
}

type createdGoal struct {
	categoryID int64
	title      string
	dueInDays  int
}

type fakeStore struct {
	goals      []domain.Goal
	categories []domain.Category
	created    []createdGoal
	createErr  error
}

func (f *fakeStore) ListGoals(_ context.Context, acc *domain.ChatAccount) ([]domain.Goal, error) {
	if !acc.Linked() {
		return nil, domain.ErrNotLinked
	}
	return f.goals, nil
}

func (f *fakeStore) ListCategories(_ context.Context, acc *domain.ChatAccount) ([]domain.Category, error) {
	if !acc.Linked() {
		return nil, domain.ErrNotLinked
	}
	return f.categories, nil
}

func (f *fakeStore) FindCategoryByTitle(_ context.Context, acc *domain.ChatAccount, title string) (*domain.Category, error) {
	if !acc.Linked() {
		return nil, domain.ErrNotLinked
	}
	for i := range f.categories {
		if f.categories[i].Title == title {
			return &f.categories[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeStore) CreateGoal(_ context.Context, acc *domain.ChatAccount, category *domain.Category, title string, dueInDays int) (*domain.Goal, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if !acc.Linked() {
		return nil, domain.ErrNotLinked
	}
	f.created = append(f.created, createdGoal{categoryID: category.ID, title: title, dueInDays: dueInDays})
	return &domain.Goal{
		ID:            int64(100 + len(f.created)),
		UserID:        acc.UserID.Int64,
		CategoryID:    category.ID,
		CategoryTitle: category.Title,
		BoardID:       category.BoardID,
		BoardTitle:    category.BoardTitle,
		Title:         title,
		Status:        domain.StatusToDo,
		Priority:      domain.PriorityMedium,
		DueDate:       time.Now().AddDate(0, 0, dueInDays),
	}, nil
}

func msgEvent(id, chatID int64, text string) transport.Event {
	return transport.Event{
		ID: id,
		Message: &transport.Message{
			ChatID:   chatID,
			Username: "alice",
			Text:     text,
			Time:     time.Now(),
		},
	}
}

// runEngine executes the scripted poll steps to completion and returns the
// engine plus its fakes for assertions.
func runEngine(t *testing.T, steps []pollStep, dir *fakeDirectory, store *fakeStore, opts Options) (*Engine, *fakeTransport) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &fakeTransport{steps: steps, cancel: cancel}
	if opts.PollRetryWait == 0 {
		opts.PollRetryWait = time.Millisecond
	}
	e := New(tr, dir, store, opts)
	if err := e.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	return e, tr
}

func directoryWithLinked(chatID int64) *fakeDirectory {
	return &fakeDirectory{accounts: map[int64]*domain.ChatAccount{
		chatID: {
			ID:       1,
			ChatID:   chatID,
			Username: "alice",
			UserID:   sql.NullInt64{Int64: 42, Valid: true},
		},
	}}
}

func TestEngineRegistrationFlow(t *testing.T) {
	dir := &fakeDirectory{}
	store := &fakeStore{}
	steps := []pollStep{
		{events: []transport.Event{msgEvent(1, 500, "/start")}},
		{events: []transport.Event{msgEvent(2, 500, "anything")}},
	}

	_, tr := runEngine(t, steps, dir, store, Options{AppBaseURL: "http://app"})

	if len(dir.registered) != 1 || dir.registered[0] != 500 {
		t.Fatalf("registered chats = %v", dir.registered)
	}
	if len(tr.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(tr.sent))
	}
	if !strings.Contains(tr.sent[0].Text, "code01") {
		t.Errorf("welcome message lacks the verification code: %q", tr.sent[0].Text)
	}
	if len(tr.sent[0].Keyboard) != 1 || tr.sent[0].Keyboard[0][0] != "/confirm" {
		t.Errorf("welcome keyboard = %v", tr.sent[0].Keyboard)
	}
	if dir.rotations != 1 {
		t.Errorf("rotations = %d, want 1 for the follow-up text", dir.rotations)
	}
	if !strings.Contains(tr.sent[1].Text, "code02") {
		t.Errorf("rotation message lacks the fresh code: %q", tr.sent[1].Text)
	}
}

func TestEngineGoalCreationFlow(t *testing.T) {
	dir := directoryWithLinked(500)
	store := &fakeStore{categories: []domain.Category{
		{ID: 9, BoardID: 5, BoardTitle: "Work", Title: "Backlog"},
		{ID: 10, BoardID: 5, BoardTitle: "Work", Title: "Done"},
	}}
	steps := []pollStep{
		{events: []transport.Event{msgEvent(1, 500, "/create")}},
		{events: []transport.Event{msgEvent(2, 500, "Backlog")}},
		{events: []transport.Event{msgEvent(3, 500, "Ship the report")}},
	}

	e, tr := runEngine(t, steps, dir, store, Options{AppBaseURL: "http://app"})

	if len(tr.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(tr.sent))
	}

	wantKeyboard := [][]string{{"Backlog"}, {"Done"}, {"/cancel"}}
	if len(tr.sent[0].Keyboard) != len(wantKeyboard) {
		t.Fatalf("category keyboard = %v", tr.sent[0].Keyboard)
	}
	for i, row := range wantKeyboard {
		if tr.sent[0].Keyboard[i][0] != row[0] {
			t.Errorf("keyboard row %d = %v, want %v", i, tr.sent[0].Keyboard[i], row)
		}
	}

	if len(store.created) != 1 {
		t.Fatalf("created goals = %d, want 1", len(store.created))
	}
	got := store.created[0]
	if got.categoryID != 9 || got.title != "Ship the report" || got.dueInDays != 7 {
		t.Errorf("created goal = %+v", got)
	}

	link := "http://app/boards/5/categories/9/goals?goal=101"
	if !strings.Contains(tr.sent[2].Text, link) {
		t.Errorf("confirmation %q lacks link %q", tr.sent[2].Text, link)
	}
	if !tr.sent[2].HTML {
		t.Error("confirmation should be HTML")
	}

	if e.Cursor() != 4 {
		t.Errorf("cursor = %d, want 4", e.Cursor())
	}
}

func TestEngineCursorMonotonic(t *testing.T) {
	dir := directoryWithLinked(500)
	store := &fakeStore{}
	steps := []pollStep{
		{events: []transport.Event{msgEvent(3, 500, "/goals"), msgEvent(4, 500, "/goals")}},
		// Redelivered older update after a restart upstream.
		{events: []transport.Event{msgEvent(2, 500, "/goals")}},
	}

	e, tr := runEngine(t, steps, dir, store, Options{})

	wantOffsets := []int64{0, 5, 5}
	if len(tr.offsets) != len(wantOffsets) {
		t.Fatalf("offsets = %v", tr.offsets)
	}
	for i, want := range wantOffsets {
		if tr.offsets[i] != want {
			t.Errorf("offset[%d] = %d, want %d", i, tr.offsets[i], want)
		}
	}
	if e.Cursor() != 5 {
		t.Errorf("cursor = %d, want 5 after redelivery", e.Cursor())
	}
	// Redelivered event is still handled.
	if len(tr.sent) != 3 {
		t.Errorf("sent %d messages, want 3", len(tr.sent))
	}
}

func TestEngineDialogTimeout(t *testing.T) {
	dir := directoryWithLinked(500)
	store := &fakeStore{categories: []domain.Category{{ID: 9, BoardID: 5, Title: "Backlog"}}}
	steps := []pollStep{
		{events: []transport.Event{msgEvent(1, 500, "/create")}},
		{}, {}, {}, // three empty cycles expire the dialog
		{}, {}, {}, // further empty cycles must not notify again
	}

	_, tr := runEngine(t, steps, dir, store, Options{MaxIdleCycles: 3})

	var expirations int
	for _, out := range tr.sent {
		if out.Text == msgSessionExpired {
			expirations++
			if out.ChatID != 500 {
				t.Errorf("expiry sent to chat %d, want 500", out.ChatID)
			}
		}
	}
	if expirations != 1 {
		t.Fatalf("expiry notifications = %d, want exactly 1", expirations)
	}
}

func TestEngineDialogSurvivesShortGaps(t *testing.T) {
	dir := directoryWithLinked(500)
	store := &fakeStore{categories: []domain.Category{{ID: 9, BoardID: 5, Title: "Backlog"}}}
	steps := []pollStep{
		{events: []transport.Event{msgEvent(1, 500, "/create")}},
		{}, {},
		// A qualifying event inside the dialog resets the counter.
		{events: []transport.Event{msgEvent(2, 500, "Backlog")}},
		{}, {},
	}

	_, tr := runEngine(t, steps, dir, store, Options{MaxIdleCycles: 3})

	for _, out := range tr.sent {
		if out.Text == msgSessionExpired {
			t.Fatal("dialog expired despite activity within the window")
		}
	}
}

func TestEnginePollErrorContinues(t *testing.T) {
	dir := directoryWithLinked(500)
	store := &fakeStore{goals: []domain.Goal{{
		ID: 1, CategoryID: 9, CategoryTitle: "Backlog", BoardID: 5, BoardTitle: "Work",
		Title: "Existing", Status: domain.StatusToDo, Priority: domain.PriorityMedium,
		DueDate: time.Now(),
	}}}
	steps := []pollStep{
		{err: errors.New("telegram: getUpdates: connection reset")},
		{events: []transport.Event{msgEvent(1, 500, "/goals")}},
	}

	e, tr := runEngine(t, steps, dir, store, Options{AppBaseURL: "http://app"})

	// A failed poll leaves the cursor untouched for the retry.
	if tr.offsets[0] != 0 || tr.offsets[1] != 0 {
		t.Errorf("offsets = %v, want retry from 0", tr.offsets)
	}
	if len(tr.sent) != 1 || !strings.Contains(tr.sent[0].Text, "Existing") {
		t.Errorf("sent = %+v, want the goal listing", tr.sent)
	}
	if e.Cursor() != 2 {
		t.Errorf("cursor = %d, want 2", e.Cursor())
	}
}

func TestEngineUnlinkedCommandsUnavailable(t *testing.T) {
	dir := &fakeDirectory{accounts: map[int64]*domain.ChatAccount{
		500: {
			ID: 1, ChatID: 500, Username: "alice",
			VerificationCode: sql.NullString{String: "code01", Valid: true},
		},
	}}
	steps := []pollStep{
		{events: []transport.Event{msgEvent(1, 500, "/goals")}},
	}

	_, tr := runEngine(t, steps, dir, &fakeStore{}, Options{})

	if len(tr.sent) != 1 || tr.sent[0].Text != msgCommandsUnavailable {
		t.Fatalf("sent = %+v, want commands-unavailable notice", tr.sent)
	}
}

func TestEngineCategoryNotFound(t *testing.T) {
	dir := directoryWithLinked(500)
	store := &fakeStore{categories: []domain.Category{{ID: 9, BoardID: 5, Title: "Backlog"}}}
	steps := []pollStep{
		{events: []transport.Event{msgEvent(1, 500, "/create")}},
		{events: []transport.Event{msgEvent(2, 500, "Secret")}},
		{events: []transport.Event{msgEvent(3, 500, "/cancel")}},
	}

	_, tr := runEngine(t, steps, dir, store, Options{})

	if len(tr.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(tr.sent))
	}
	if !strings.Contains(tr.sent[1].Text, "Secret") {
		t.Errorf("not-found reply = %q", tr.sent[1].Text)
	}
	if tr.sent[2].Text != msgCancelled {
		t.Errorf("cancel reply = %q", tr.sent[2].Text)
	}
	if len(store.created) != 0 {
		t.Errorf("goals created = %d, want none", len(store.created))
	}
}

func TestEngineNoGoals(t *testing.T) {
	dir := directoryWithLinked(500)
	steps := []pollStep{
		{events: []transport.Event{msgEvent(1, 500, "/goals")}},
	}

	_, tr := runEngine(t, steps, dir, &fakeStore{}, Options{})

	if len(tr.sent) != 1 || tr.sent[0].Text != msgNoGoals {
		t.Fatalf("sent = %+v, want empty-list notice", tr.sent)
	}
}

func TestEngineCreateFailureNotifiesUser(t *testing.T) {
	dir := directoryWithLinked(500)
	store := &fakeStore{
		categories: []domain.Category{{ID: 9, BoardID: 5, Title: "Backlog"}},
		createErr:  errors.New("insert failed"),
	}
	steps := []pollStep{
		{events: []transport.Event{msgEvent(1, 500, "/create")}},
		{events: []transport.Event{msgEvent(2, 500, "Backlog")}},
		{events: []transport.Event{msgEvent(3, 500, "Doomed goal")}},
	}

	_, tr := runEngine(t, steps, dir, store, Options{})

	last := tr.sent[len(tr.sent)-1]
	if last.Text != msgGoalCreateFailed {
		t.Errorf("last message = %q, want failure notice", last.Text)
	}
}
