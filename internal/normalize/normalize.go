// Package normalize maps raw task documents from the personal and team
// collections onto the canonical model.Task.
package normalize

import (
	"strings"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
)

// Normalize converts a raw task document into a Task. It performs no I/O:
// team tasks must be given their resolved team name (empty when unknown).
// Missing or mistyped fields fall back to defaults instead of failing.
func Normalize(doc store.Document, src model.Source, teamName string) model.Task {
	t := model.Task{
		ID:          doc.ID(),
		RawID:       doc.ID(),
		Source:      src,
		Title:       doc.String(model.FieldTitle),
		Description: doc.FirstString(model.FieldDescription, model.FieldNotes),
		Priority:    model.PriorityMedium,
		Status:      model.StatusTodo,
	}

	if v, ok := doc.Value(model.FieldPriority); ok {
		t.Priority = ParsePriority(v)
	}
	if v, ok := doc.Value(model.FieldStatus); ok {
		t.Status = ParseStatus(v)
	}
	if deadline, ok := doc.Time(model.FieldDeadline); ok {
		t.Deadline = &deadline
	}
	if created, ok := doc.FirstTime(model.FieldCreatedAt, model.FieldCreatedAtV1); ok {
		t.CreatedAt = created
	}

	fallback := model.DefaultCategory
	switch src {
	case model.SourceTeam:
		t.TeamID = doc.String(model.FieldTeamID)
		t.TeamName = teamName
		t.ID = model.TeamTaskID(t.TeamID, t.RawID)
		t.OwnerID = model.TeamOwnerID
		fallback = teamName
		if fallback == "" {
			fallback = t.TeamID
		}
	case model.SourcePersonalLegacyAlias:
		t.OwnerID = doc.FirstString(model.FieldLegacyOwnerID, model.FieldOwnerID)
	default:
		t.OwnerID = doc.FirstString(model.FieldOwnerID, model.FieldLegacyOwnerID)
	}

	t.Categories = categories(doc, fallback)
	return t
}

// categories reads the category list, preferring the plural field, and
// returns it trimmed and de-duplicated in original order.
func categories(doc store.Document, fallback string) []string {
	raw := doc.Strings(model.FieldCategories)
	if len(raw) == 0 {
		raw = doc.Strings(model.FieldCategory)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}

	if len(out) == 0 {
		if fallback == "" {
			fallback = model.DefaultCategory
		}
		out = append(out, fallback)
	}
	return out
}

// ParsePriority accepts case-insensitive names ("high") and ordinals
// (0 low, 1 medium, 2 high). Anything else is Medium.
func ParsePriority(v any) model.Priority {
	switch p := v.(type) {
	case string:
		switch key(p) {
		case "low":
			return model.PriorityLow
		case "high":
			return model.PriorityHigh
		}
	case float64:
		switch int(p) {
		case 0:
			return model.PriorityLow
		case 2:
			return model.PriorityHigh
		}
	}
	return model.PriorityMedium
}

// ParseStatus accepts case-insensitive names ("IN_PROGRESS", "in progress",
// "on hold") and ordinals in declaration order. Anything else is Todo.
func ParseStatus(v any) model.Status {
	switch s := v.(type) {
	case string:
		switch key(s) {
		case "waiting":
			return model.StatusWaiting
		case "done", "completed", "complete":
			return model.StatusDone
		case "hold", "onhold":
			return model.StatusHold
		case "inprogress":
			return model.StatusInProgress
		}
	case float64:
		switch int(s) {
		case 0:
			return model.StatusWaiting
		case 2:
			return model.StatusDone
		case 3:
			return model.StatusHold
		case 4:
			return model.StatusInProgress
		}
	}
	return model.StatusTodo
}

// key lowercases s and strips separators so "In Progress", "IN_PROGRESS"
// and "in-progress" compare equal.
func key(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r == ' ' || r == '_' || r == '-' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
