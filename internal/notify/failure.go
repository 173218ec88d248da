package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mbakke/signoff/internal/metrics"
	"github.com/mbakke/signoff/internal/models"
)

// EventAppender persists audit events.
type EventAppender interface {
	Append(ctx context.Context, event *models.Event) error
}

// RecordFailures returns a failure hook that counts failed sends and
// appends a notification.failed audit event for the request concerned.
func RecordFailures(appender EventAppender, logger zerolog.Logger) func(msg Message, err error) {
	return func(msg Message, err error) {
		metrics.NotificationFailures.Inc()

		entityType := models.EntityTypeApproval
		entityID := msg.RequestID
		if entityID == "" {
			entityType = models.EntityTypeSystem
			entityID = "notifier"
		}

		payload, _ := json.Marshal(models.NotificationFailedPayload{
			Recipients: msg.Recipients,
			Subject:    msg.Subject,
			Error:      err.Error(),
		})
		event := &models.Event{
			Type:       models.EventTypeNotificationFailed,
			EntityType: entityType,
			EntityID:   entityID,
			Payload:    payload,
		}
		if aerr := appender.Append(context.Background(), event); aerr != nil {
			logger.Warn().Err(aerr).Msg("failed to record notification failure")
		}
	}
}
