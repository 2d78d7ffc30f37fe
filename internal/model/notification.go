package model

import "time"

// NotificationType classifies why a notification was created.
type NotificationType string

const (
	NotificationAssignment       NotificationType = "ASSIGNMENT"
	NotificationTeamInvite       NotificationType = "TEAM_INVITE"
	NotificationDeadlineReminder NotificationType = "DEADLINE_REMINDER"
	NotificationComment          NotificationType = "COMMENT"
	NotificationManualInvite     NotificationType = "MANUAL_INVITE"
)

// NotificationEvent is a durable notification addressed to one user.
// The engine creates it once; only the reader of the notification
// changes it afterwards (IsRead).
type NotificationEvent struct {
	// ID is the document id in the notifications collection.
	ID string `json:"id"`

	// TargetUserID is the user the notification is addressed to.
	TargetUserID string `json:"target_user_id"`

	Title       string           `json:"title"`
	Description string           `json:"description"`
	Type        NotificationType `json:"type"`

	// IsRead indicates whether the user has seen this notification.
	IsRead bool `json:"is_read"`

	CreatedAt time.Time `json:"created_at"`

	// Optional context about the originating record.
	TaskID      string `json:"task_id,omitempty"`
	TaskTitle   string `json:"task_title,omitempty"`
	TeamID      string `json:"team_id,omitempty"`
	ActorUserID string `json:"actor_user_id,omitempty"`
}

// Fields returns the document representation stored in the
// notifications collection.
func (n NotificationEvent) Fields() map[string]any {
	data := map[string]any{
		FieldTargetUserID: n.TargetUserID,
		FieldTitle:        n.Title,
		FieldDescription:  n.Description,
		FieldType:         string(n.Type),
		FieldIsRead:       n.IsRead,
		FieldCreatedAt:    n.CreatedAt,
	}
	if n.TaskID != "" {
		data[FieldTaskID] = n.TaskID
	}
	if n.TaskTitle != "" {
		data[FieldTaskTitle] = n.TaskTitle
	}
	if n.TeamID != "" {
		data[FieldTeamID] = n.TeamID
	}
	if n.ActorUserID != "" {
		data[FieldActorUserID] = n.ActorUserID
	}
	return data
}
