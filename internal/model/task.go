package model

import (
	"fmt"
	"time"
)

// Source identifies which live query produced a task.
type Source string

const (
	SourcePersonal            Source = "personal"
	SourcePersonalLegacyAlias Source = "personal_legacy_alias"
	SourceTeam                Source = "team"
)

// Priority is the normalized task priority.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityHigh:
		return "HIGH"
	default:
		return "MEDIUM"
	}
}

// Status is the normalized task status.
type Status int

const (
	StatusWaiting Status = iota
	StatusTodo
	StatusDone
	StatusHold
	StatusInProgress
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusDone:
		return "DONE"
	case StatusHold:
		return "HOLD"
	case StatusInProgress:
		return "IN_PROGRESS"
	default:
		return "TODO"
	}
}

// TeamOwnerID is the owner placeholder carried by every team task so the
// consumer can tell shared tasks apart from personal ones.
const TeamOwnerID = "__team__"

// DefaultCategory is the label given to personal tasks that carry none.
const DefaultCategory = "Personal"

// Task is the canonical representation of a task shown in a user's feed.
type Task struct {
	// ID is globally unique across sources. Team tasks are namespaced
	// with TeamTaskID.
	ID string `json:"id"`

	// RawID is the document id in its source collection.
	RawID string `json:"raw_id"`

	// Source identifies which subscription produced this task.
	Source Source `json:"source"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// Deadline is nil when the record has none.
	Deadline *time.Time `json:"deadline,omitempty"`

	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`

	// Categories is ordered, de-duplicated and never empty.
	Categories []string `json:"categories"`

	// OwnerID is the user the task displays under, or TeamOwnerID.
	OwnerID string `json:"owner_id"`

	// TeamID and TeamName are set for team tasks only.
	TeamID   string `json:"team_id,omitempty"`
	TeamName string `json:"team_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TeamTaskID builds the canonical id of a team-sourced task.
func TeamTaskID(teamID, rawID string) string {
	return fmt.Sprintf("team:%s:%s", teamID, rawID)
}

// IsTeamTask reports whether the task came from a team subscription.
func (t Task) IsTeamTask() bool {
	return t.Source == SourceTeam
}

// IsOverdue reports whether the deadline has passed for an unfinished task.
func (t Task) IsOverdue(now time.Time) bool {
	return t.Deadline != nil && t.Deadline.Before(now) && t.Status != StatusDone
}
