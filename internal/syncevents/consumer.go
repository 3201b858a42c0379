// Package syncevents consumes backend push events and turns them into cache
// invalidations, so a change made on another device shows up here without
// waiting for the stale window to lapse.
package syncevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/SeaWiser/shoes-sync/pkg/logger"
	"github.com/SeaWiser/shoes-sync/pkg/redis"
)

const (
	// EventProfileUpdated signals that a user's profile document changed.
	EventProfileUpdated = "profile.updated"
	// EventCatalogPublished signals new or changed notification catalog
	// entries.
	EventCatalogPublished = "catalog.published"

	dedupeScope = "sync-events"
	dedupeTTL   = 24 * time.Hour
)

// ProfileInvalidator marks one user's cached profile stale.
type ProfileInvalidator interface {
	Invalidate(userID string)
}

// CatalogInvalidator marks the notification catalog stale.
type CatalogInvalidator interface {
	Invalidate()
}

// Consumer watches the push subscription and routes each event to the
// service owning the affected cache entry.
type Consumer struct {
	subscription *pubsub.Subscriber
	dedupe       redis.DedupeStore
	profiles     ProfileInvalidator
	catalog      CatalogInvalidator
	logg         *logger.Logger
}

func NewConsumer(subscription *pubsub.Subscriber, dedupe redis.DedupeStore, profiles ProfileInvalidator, catalog CatalogInvalidator, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("push subscription required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("dedupe store required")
	}
	if profiles == nil || catalog == nil {
		return nil, fmt.Errorf("profile and catalog invalidators required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		dedupe:       dedupe,
		profiles:     profiles,
		catalog:      catalog,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

type eventPayload struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != EventProfileUpdated && eventType != EventCatalogPublished {
		c.logg.Info(logCtx, "skipping unknown event")
		return processResult{ack: true}
	}

	var payload eventPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode event payload", err)
		return processResult{ack: true}
	}
	if payload.EventID == "" {
		c.logg.Info(logCtx, "event without id, skipping")
		return processResult{ack: true}
	}

	fresh, err := c.dedupe.SetNX(ctx, c.dedupe.DedupeKey(dedupeScope, payload.EventID), 1, dedupeTTL)
	if err != nil {
		c.logg.Error(logCtx, "dedupe check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	switch eventType {
	case EventProfileUpdated:
		if payload.UserID == "" {
			c.logg.Info(logCtx, "profile event without user id, skipping")
			return processResult{ack: true}
		}
		c.profiles.Invalidate(payload.UserID)
		c.logg.Info(c.logg.WithUserID(logCtx, payload.UserID), "profile cache invalidated by push event")
	case EventCatalogPublished:
		c.catalog.Invalidate()
		c.logg.Info(logCtx, "notification catalog invalidated by push event")
	}
	return processResult{ack: true}
}
