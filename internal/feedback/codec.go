// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package feedback

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

// Message metadata keys.
const (
	MetaUserID      = "user_id"
	MetaType        = "interaction_type"
	MetaRequestID   = "request_id"
	MetaPoisonCause = "poison_cause"
)

// schemaVersion is bumped on incompatible payload changes.
const schemaVersion = 1

type envelope struct {
	Version int                        `json:"v"`
	Event   recommend.InteractionEvent `json:"event"`
}

// EncodeEvent builds a bus message for event. The message UUID is the
// event id, which doubles as the JetStream de-duplication id.
func EncodeEvent(event *recommend.InteractionEvent) (*message.Message, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("%w: event id required for publishing", recommend.ErrInvalidEvent)
	}
	payload, err := json.Marshal(envelope{Version: schemaVersion, Event: *event})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set(MetaUserID, event.UserID)
	msg.Metadata.Set(MetaType, string(event.Type))
	msg.Metadata.Set(natsgo.MsgIdHdr, event.ID)
	return msg, nil
}

// DecodeEvent parses a bus message.
func DecodeEvent(msg *message.Message) (recommend.InteractionEvent, error) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return recommend.InteractionEvent{}, fmt.Errorf("%w: decode message %s: %v", recommend.ErrInvalidEvent, msg.UUID, err)
	}
	if env.Version != schemaVersion {
		return recommend.InteractionEvent{}, fmt.Errorf("%w: message %s has schema version %d", recommend.ErrInvalidEvent, msg.UUID, env.Version)
	}
	if env.Event.ID == "" {
		env.Event.ID = msg.UUID
	}
	return env.Event, nil
}
