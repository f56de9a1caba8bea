package goalstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/goalbot/core/logger"
	"github.com/m3rciful/goalbot/internal/domain"
	"log/slog"
)

// Postgres queries goals and categories under the same permission model the
// web application enforces: listings are scoped to boards the linked user
// participates in, category selection and goal creation additionally require
// the owner or moderator role, and soft-deleted boards/categories never match.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres constructs the store over an open connection pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// ListGoals returns non-archived goals visible to the account's user.
func (p *Postgres) ListGoals(ctx context.Context, acc *domain.ChatAccount) ([]domain.Goal, error) {
	if !acc.Linked() {
		return nil, domain.ErrNotLinked
	}

	var goals []domain.Goal
	query := `
		SELECT g.id, g.user_id, g.category_id, c.title AS category_title,
		       b.id AS board_id, b.title AS board_title,
		       g.title, g.description, g.status, g.priority, g.due_date
		FROM goals g
		JOIN goal_categories c ON c.id = g.category_id
		JOIN boards b ON b.id = c.board_id
		JOIN board_participants p ON p.board_id = b.id
		WHERE p.user_id = $1
		  AND NOT b.is_deleted
		  AND NOT c.is_deleted
		  AND g.status <> $2
		ORDER BY g.id`
	if err := p.db.SelectContext(ctx, &goals, query, acc.UserID.Int64, domain.StatusArchived); err != nil {
		return nil, fmt.Errorf("list goals for account %d: %w", acc.ID, err)
	}

	logger.Debug(ctx, "store.goals", "goals.listed",
		slog.Int64("account_id", acc.ID),
		slog.Int("goals", len(goals)),
	)
	return goals, nil
}

const categoryColumns = `c.id, c.board_id, b.title AS board_title, c.title, c.is_deleted`

// writableCategories matches categories the user may create goals in.
const writableCategories = `
	FROM goal_categories c
	JOIN boards b ON b.id = c.board_id
	JOIN board_participants p ON p.board_id = b.id
	WHERE p.user_id = $1
	  AND p.role IN ($2, $3)
	  AND NOT b.is_deleted
	  AND NOT c.is_deleted`

// ListCategories returns categories where the account's user is an owner or moderator.
func (p *Postgres) ListCategories(ctx context.Context, acc *domain.ChatAccount) ([]domain.Category, error) {
	if !acc.Linked() {
		return nil, domain.ErrNotLinked
	}

	var categories []domain.Category
	query := `SELECT ` + categoryColumns + writableCategories + ` ORDER BY c.id`
	err := p.db.SelectContext(ctx, &categories, query,
		acc.UserID.Int64, domain.RoleOwner, domain.RoleModerator)
	if err != nil {
		return nil, fmt.Errorf("list categories for account %d: %w", acc.ID, err)
	}

	logger.Debug(ctx, "store.goals", "categories.listed",
		slog.Int64("account_id", acc.ID),
		slog.Int("categories", len(categories)),
	)
	return categories, nil
}

// FindCategoryByTitle resolves an exact title match within the writable scope.
// Duplicate titles are not disambiguated; the first match wins, same as the
// listing the user picked from.
func (p *Postgres) FindCategoryByTitle(ctx context.Context, acc *domain.ChatAccount, title string) (*domain.Category, error) {
	if !acc.Linked() {
		return nil, domain.ErrNotLinked
	}

	var category domain.Category
	query := `SELECT ` + categoryColumns + writableCategories + ` AND c.title = $4 ORDER BY c.id LIMIT 1`
	err := p.db.GetContext(ctx, &category, query,
		acc.UserID.Int64, domain.RoleOwner, domain.RoleModerator, title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find category %q for account %d: %w", title, acc.ID, err)
	}
	return &category, nil
}

// CreateGoal inserts a goal with default status and priority, due in dueInDays from today.
func (p *Postgres) CreateGoal(ctx context.Context, acc *domain.ChatAccount, category *domain.Category, title string, dueInDays int) (*domain.Goal, error) {
	if !acc.Linked() {
		return nil, domain.ErrNotLinked
	}
	if category == nil {
		return nil, domain.ErrNotFound
	}

	dueDate := time.Now().AddDate(0, 0, dueInDays)

	var goal domain.Goal
	query := `
		INSERT INTO goals (user_id, category_id, title, description, status, priority, due_date)
		VALUES ($1, $2, $3, '', $4, $5, $6)
		RETURNING id, user_id, category_id, title, description, status, priority, due_date`
	err := p.db.GetContext(ctx, &goal, query,
		acc.UserID.Int64, category.ID, title,
		domain.StatusToDo, domain.PriorityMedium, dueDate.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("create goal in category %d: %w", category.ID, err)
	}

	goal.CategoryTitle = category.Title
	goal.BoardID = category.BoardID
	goal.BoardTitle = category.BoardTitle

	logger.Info(ctx, "store.goals", "goal.created",
		slog.Int64("goal_id", goal.ID),
		slog.Int64("category_id", category.ID),
		slog.Int64("board_id", category.BoardID),
	)
	return &goal, nil
}
