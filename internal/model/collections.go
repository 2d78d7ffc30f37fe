package model

// Collection names in the document store.
const (
	CollectionTasks                = "tasks"
	CollectionTeams                = "teams"
	CollectionTeamTasks            = "team_tasks"
	CollectionComments             = "comments"
	CollectionNotifications        = "notifications"
	CollectionCommentNotifications = "comment_notifications"
)

// Document field names shared by several collections.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldNotes       = "notes"
	FieldDeadline    = "deadline"
	FieldPriority    = "priority"
	FieldStatus      = "status"
	FieldCategories  = "categories"
	FieldCategory    = "category"
	FieldCreatedAt   = "createdAt"
	FieldCreatedAtV1 = "created_at"
	FieldCreatedBy   = "createdBy"
	FieldName        = "name"
)

// Ownership and membership fields.
const (
	// FieldOwnerID is the primary owner field of personal tasks.
	FieldOwnerID = "ownerId"

	// FieldLegacyOwnerID is the alias owner field some personal tasks
	// were written with. Both fields are queried.
	FieldLegacyOwnerID = "userId"

	FieldTeamID    = "teamId"
	FieldAssignees = "assignees"
	FieldMembers   = "members"
)

// Comment fields.
const (
	FieldTaskID    = "taskId"
	FieldAuthorID  = "authorId"
	FieldText      = "text"
	FieldCommentID = "commentId"
	FieldMemberID  = "memberId"
)

// Notification fields.
const (
	FieldTargetUserID = "targetUserId"
	FieldType         = "type"
	FieldIsRead       = "isRead"
	FieldTaskTitle    = "taskTitle"
	FieldActorUserID  = "actorUserId"
)

// Dedup marker fields on source records.
const (
	FieldNotifiedUsers         = "notifiedUsers"
	FieldNotifiedMembers       = "notifiedMembers"
	FieldNotifiedDeadlineUsers = "notifiedDeadlineUsers"
)
