package usersink

import (
	"context"
	"strings"
	"time"

	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"

	"github.com/goliatone/go-datalayer/pkg/activity"
)

// ObjectType is recorded on every activity record emitted by Hook.
const ObjectType = "datalayer"

// Hook adapts store notifications to a go-users ActivitySink. Identity fields
// are fixed per hook since a store belongs to a single session.
type Hook struct {
	Sink     usertypes.ActivitySink
	ActorID  string
	UserID   string
	TenantID string
	// ObjectID identifies the session or store; defaults to the event channel.
	ObjectID string
	// IncludeSnapshot attaches the full document under data["snapshot"].
	IncludeSnapshot bool
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}

	normalized := activity.NormalizeEvent(event)
	if !normalized.Kind.Valid() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	objectID := strings.TrimSpace(h.ObjectID)
	if objectID == "" {
		objectID = normalized.Channel
	}
	if objectID == "" {
		objectID = activity.DefaultChannel
	}

	record := usertypes.ActivityRecord{
		ActorID:    parseUUID(h.ActorID),
		UserID:     parseUUID(h.UserID),
		TenantID:   parseUUID(h.TenantID),
		Verb:       "datalayer." + string(normalized.Kind),
		ObjectType: ObjectType,
		ObjectID:   objectID,
		Channel:    normalized.Channel,
		Data:       cloneMap(normalized.Metadata),
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	if h.IncludeSnapshot && normalized.Snapshot != nil {
		if record.Data == nil {
			record.Data = map[string]any{}
		}
		record.Data["snapshot"] = normalized.Snapshot
	}

	return h.Sink.Log(ctx, record)
}

func parseUUID(input string) uuid.UUID {
	value := strings.TrimSpace(input)
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
