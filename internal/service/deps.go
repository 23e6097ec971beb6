package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Skotchmaster/car_rental/internal/events"
	"github.com/Skotchmaster/car_rental/internal/models"
	"github.com/Skotchmaster/car_rental/internal/search"
)

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type UserIndexer interface {
	IndexUser(ctx context.Context, u *models.User) error
}

type UserSearcher interface {
	Search(ctx context.Context, q string, from, size int) (search.Results, error)
}

// Site is where links in outgoing mail point to.
type Site struct {
	Scheme string
	Domain string
}

func publish(ctx context.Context, l *slog.Logger, p EventPublisher, ev events.UserEvent) {
	if p == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := p.PublishEvent(ctx, events.TopicUserEvents, ev.Key(), ev); err != nil {
		l.Error("event_publish_failed", "event", ev.Type, "error", err)
	}
}

func reindex(ctx context.Context, l *slog.Logger, x UserIndexer, u *models.User) {
	if x == nil {
		return
	}
	if err := x.IndexUser(ctx, u); err != nil {
		l.Error("index_user_failed", "user_id", u.ID, "error", err)
	}
}
