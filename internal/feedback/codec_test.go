// Scentmatch - Hybrid Fragrance Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scentmatch

package feedback

import (
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/scentmatch/internal/recommend"
)

func TestEncodeEvent(t *testing.T) {
	t.Parallel()

	ev := event("ev-42")
	ev.Context = &recommend.RequestContext{Season: "winter"}

	msg, err := EncodeEvent(&ev)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if msg.UUID != "ev-42" || msg.Metadata.Get(natsgo.MsgIdHdr) != "ev-42" {
		t.Errorf("message ids = %q / %q, want ev-42", msg.UUID, msg.Metadata.Get(natsgo.MsgIdHdr))
	}
	if msg.Metadata.Get(MetaUserID) != "alice" || msg.Metadata.Get(MetaType) != "rate" {
		t.Errorf("metadata = %v", msg.Metadata)
	}

	got, err := DecodeEvent(msg)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if got.ID != ev.ID || got.ItemID != ev.ItemID || got.Context == nil || got.Context.Season != "winter" {
		t.Errorf("DecodeEvent() = %+v", got)
	}
}

func TestEncodeEvent_RequiresID(t *testing.T) {
	t.Parallel()

	ev := event("")
	if _, err := EncodeEvent(&ev); !errors.Is(err, recommend.ErrInvalidEvent) {
		t.Errorf("EncodeEvent() error = %v, want ErrInvalidEvent", err)
	}
}

func TestDecodeEvent_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantSub string
	}{
		{"garbage", "{", "decode message"},
		{"wrong version", `{"v":7,"event":{"id":"x"}}`, "schema version 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeEvent(message.NewMessage("m-1", []byte(tt.payload)))
			if !errors.Is(err, recommend.ErrInvalidEvent) || !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("DecodeEvent() error = %v, want ErrInvalidEvent containing %q", err, tt.wantSub)
			}
		})
	}
}

func TestDecodeEvent_FallsBackToMessageUUID(t *testing.T) {
	t.Parallel()

	msg := message.NewMessage("m-9", []byte(`{"v":1,"event":{"user_id":"bob","item_id":"citrus-0","type":"view"}}`))
	got, err := DecodeEvent(msg)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if got.ID != "m-9" || got.UserID != "bob" {
		t.Errorf("DecodeEvent() = %+v, want id m-9", got)
	}
}
