package normalize

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nhle/taskfeed/internal/model"
	"github.com/nhle/taskfeed/internal/store"
)

// ErrMissingTeam is returned when resolving an empty team id.
var ErrMissingTeam = errors.New("team task has no team id")

// Getter is the point-read half of store.Store.
type Getter interface {
	Get(ctx context.Context, ref store.Ref) (store.Document, error)
}

// TeamNames resolves team ids to display names. Successful lookups are
// cached for the life of the resolver; failures are not.
type TeamNames struct {
	getter Getter

	mu    sync.Mutex
	names map[string]string
}

// NewTeamNames creates a resolver backed by g.
func NewTeamNames(g Getter) *TeamNames {
	return &TeamNames{
		getter: g,
		names:  make(map[string]string),
	}
}

// Resolve returns the name of team teamID. A team without a name resolves
// to "".
func (r *TeamNames) Resolve(ctx context.Context, teamID string) (string, error) {
	if teamID == "" {
		return "", ErrMissingTeam
	}

	r.mu.Lock()
	name, ok := r.names[teamID]
	r.mu.Unlock()
	if ok {
		return name, nil
	}

	doc, err := r.getter.Get(ctx, store.Doc(model.CollectionTeams, teamID))
	if err != nil {
		return "", fmt.Errorf("resolving team %s: %w", teamID, err)
	}
	name = doc.String(model.FieldName)

	r.mu.Lock()
	r.names[teamID] = name
	r.mu.Unlock()
	return name, nil
}

// NormalizeTeamTask resolves the task's team name and normalizes it. A
// task without a team id is normalized with no team name. A lookup
// failure is returned so the caller can skip this record.
func (r *TeamNames) NormalizeTeamTask(ctx context.Context, doc store.Document) (model.Task, error) {
	teamID := doc.String(model.FieldTeamID)
	if teamID == "" {
		return Normalize(doc, model.SourceTeam, ""), nil
	}
	name, err := r.Resolve(ctx, teamID)
	if err != nil {
		return model.Task{}, err
	}
	return Normalize(doc, model.SourceTeam, name), nil
}
