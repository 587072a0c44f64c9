package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"edujudge/internal/common/mq"
	"edujudge/internal/judge/model"
	appErr "edujudge/pkg/errors"
)

// VerdictPublisher announces finalized submissions.
type VerdictPublisher interface {
	PublishVerdict(ctx context.Context, event model.VerdictEvent) error
}

// MQVerdictPublisher publishes verdict events to a message queue.
type MQVerdictPublisher struct {
	queue mq.Producer
	topic string
}

// NewMQVerdictPublisher creates a new MQ verdict publisher.
func NewMQVerdictPublisher(queue mq.Producer, topic string) *MQVerdictPublisher {
	return &MQVerdictPublisher{queue: queue, topic: topic}
}

// PublishVerdict keys the message by participant so one user's events stay ordered.
func (p *MQVerdictPublisher) PublishVerdict(ctx context.Context, event model.VerdictEvent) error {
	if p == nil || p.queue == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("verdict topic is required")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if event.Type == "" {
		event.Type = model.VerdictEventFinal
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	key := strconv.FormatInt(event.ContestID, 10) + ":" + strconv.FormatInt(event.UserID, 10)
	message := mq.NewMessage(key, payload)
	message.SetHeader("submission_id", event.SubmissionID)
	message.SetHeader("event_type", event.Type)
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish verdict event failed")
	}
	return nil
}

// DecodeVerdictEvent parses a message produced by PublishVerdict.
func DecodeVerdictEvent(msg *mq.Message) (model.VerdictEvent, error) {
	if msg == nil {
		return model.VerdictEvent{}, appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var event model.VerdictEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return model.VerdictEvent{}, appErr.Wrapf(err, appErr.InvalidParams, "decode verdict event failed")
	}
	if event.SubmissionID == "" || event.ContestID <= 0 || event.UserID <= 0 {
		return model.VerdictEvent{}, appErr.New(appErr.InvalidParams).WithMessage("verdict event missing required fields")
	}
	return event, nil
}
