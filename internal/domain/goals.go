package domain

import "time"

// Role is a board participant role.
type Role int

const (
	// RoleOwner owns the board.
	RoleOwner Role = 1
	// RoleModerator may edit board content.
	RoleModerator Role = 2
	// RoleViewer has read-only access.
	RoleViewer Role = 3
)

// GoalStatus is the workflow status of a goal.
type GoalStatus int

const (
	// StatusToDo marks a planned goal.
	StatusToDo GoalStatus = 1
	// StatusInProgress marks a goal being worked on.
	StatusInProgress GoalStatus = 2
	// StatusDone marks a completed goal.
	StatusDone GoalStatus = 3
	// StatusArchived marks a goal hidden from listings.
	StatusArchived GoalStatus = 4
)

func (s GoalStatus) String() string {
	switch s {
	case StatusToDo:
		return "to do"
	case StatusInProgress:
		return "in progress"
	case StatusDone:
		return "done"
	case StatusArchived:
		return "archived"
	}
	return "unknown"
}

// GoalPriority is the priority of a goal.
type GoalPriority int

const (
	// PriorityLow is the lowest priority.
	PriorityLow GoalPriority = 1
	// PriorityMedium is the default priority.
	PriorityMedium GoalPriority = 2
	// PriorityHigh marks an important goal.
	PriorityHigh GoalPriority = 3
	// PriorityCritical marks an urgent goal.
	PriorityCritical GoalPriority = 4
)

func (p GoalPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// Board groups categories and participants.
type Board struct {
	ID        int64  `db:"id"`
	Title     string `db:"title"`
	IsDeleted bool   `db:"is_deleted"`
}

// Category belongs to a board and groups goals.
type Category struct {
	ID         int64  `db:"id"`
	BoardID    int64  `db:"board_id"`
	BoardTitle string `db:"board_title"`
	Title      string `db:"title"`
	IsDeleted  bool   `db:"is_deleted"`
}

// Goal is a single todo item inside a category.
type Goal struct {
	ID            int64        `db:"id"`
	UserID        int64        `db:"user_id"`
	CategoryID    int64        `db:"category_id"`
	CategoryTitle string       `db:"category_title"`
	BoardID       int64        `db:"board_id"`
	BoardTitle    string       `db:"board_title"`
	Title         string       `db:"title"`
	Description   string       `db:"description"`
	Status        GoalStatus   `db:"status"`
	Priority      GoalPriority `db:"priority"`
	DueDate       time.Time    `db:"due_date"`
}
