package session

import (
	"fmt"
	"html"

	"github.com/m3rciful/goalbot/internal/domain"
)

// Canned reply keyboards. The category keyboard is built per request from the
// account's writable categories.
var (
	mainMenuRows = [][]string{{cmdGoals, cmdCreate}}
	confirmRows  = [][]string{{cmdConfirm}}
)

const (
	msgCommandsUnavailable = "Commands are unavailable until you verify your account."
	msgInvalidCommand      = "Unknown command. Use /goals to list your goals or /create to add one."
	msgChooseCategory      = "Choose a category for the new goal:"
	msgEnterTitle          = "Now send the title of the new goal, or /cancel to abort."
	msgCancelled           = "Cancelled. Back to the main menu."
	msgSessionExpired      = "The session expired, the dialog was cancelled. Back to the main menu."
	msgNoGoals             = "You have no goals yet. Create one with /create."
	msgGoalCreateFailed    = "Could not create the goal. Please try again with /create."
)

func msgWelcome(name, code string) string {
	return fmt.Sprintf(
		"Hello, %s! Link this chat to your account on the site using the code below, then press /confirm.\n\nYour verification code: %s",
		name, code,
	)
}

func msgCodeRotated(code string) string {
	return fmt.Sprintf(
		"Your account is not verified yet. Here is a fresh code: %s\n\nEnter it on the site, then press /confirm.",
		code,
	)
}

func msgVerified(name string) string {
	return fmt.Sprintf("You are verified, %s! Use /goals to list your goals or /create to add one.", name)
}

func msgCategoryChosen(title string) string {
	return fmt.Sprintf("Category <b>%s</b> selected. %s", html.EscapeString(title), msgEnterTitle)
}

func msgCategoryNotFound(title string) string {
	return fmt.Sprintf(
		"No category titled <b>%s</b> among your boards. Pick one from the keyboard or press /cancel.",
		html.EscapeString(title),
	)
}

func msgGoalCreated(baseURL string, g *domain.Goal) string {
	return fmt.Sprintf(
		"Goal <a href=\"%s\"><b>%s</b></a> created in <b>%s</b>, due %s.",
		goalURL(baseURL, g),
		html.EscapeString(g.Title),
		html.EscapeString(g.CategoryTitle),
		g.DueDate.Format("02.01.2006"),
	)
}

func msgGoalItem(baseURL string, g *domain.Goal) string {
	description := g.Description
	if description == "" {
		description = "no description"
	}
	return fmt.Sprintf(
		"<a href=\"%s\"><b>%s</b></a>\nBoard: %s / %s\nStatus: %s, priority: %s\nDue: %s\n%s",
		goalURL(baseURL, g),
		html.EscapeString(g.Title),
		html.EscapeString(g.BoardTitle),
		html.EscapeString(g.CategoryTitle),
		g.Status, g.Priority,
		g.DueDate.Format("02.01.2006"),
		html.EscapeString(description),
	)
}

// goalURL points at the goal inside the web application.
func goalURL(baseURL string, g *domain.Goal) string {
	return fmt.Sprintf("%s/boards/%d/categories/%d/goals?goal=%d", baseURL, g.BoardID, g.CategoryID, g.ID)
}

// categoryRows builds the reply keyboard for category selection: one title
// per row plus a trailing /cancel row.
func categoryRows(categories []domain.Category) [][]string {
	rows := make([][]string, 0, len(categories)+1)
	for _, c := range categories {
		rows = append(rows, []string{c.Title})
	}
	rows = append(rows, []string{cmdCancel})
	return rows
}

func keyboardRows(kb Keyboard) [][]string {
	switch kb {
	case KeyboardMain:
		return mainMenuRows
	case KeyboardConfirm:
		return confirmRows
	}
	return nil
}
