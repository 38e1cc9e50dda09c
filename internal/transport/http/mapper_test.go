package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/proto"
	"github.com/vovakirdan/huddle-server/internal/store"
)

func TestInboundToCommand(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		data    string
		kind    core.CommandKind
		room    string
		msgType store.MessageType
		wantErr bool
	}{
		{name: "join", typ: "join-room", data: `{"roomId":"r1"}`, kind: core.CommandJoinRoom, room: "r1"},
		{name: "leave", typ: "leave-room", data: `{"roomId":"r1"}`, kind: core.CommandLeaveRoom, room: "r1"},
		{name: "send defaults type", typ: "send-message", data: `{"chatRoomId":"r2","content":"hi"}`, kind: core.CommandSendMessage, room: "r2"},
		{name: "send image", typ: "send-message", data: `{"chatRoomId":"r2","content":"pic","type":"IMAGE"}`, kind: core.CommandSendMessage, room: "r2", msgType: store.MessageTypeImage},
		{name: "typing", typ: "typing", data: `{"roomId":"r3","isTyping":true}`, kind: core.CommandTyping, room: "r3"},
		{name: "missing room", typ: "join-room", data: `{}`, wantErr: true},
		{name: "malformed", typ: "typing", data: `[1,2]`, wantErr: true},
		{name: "unknown", typ: "shout", data: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, perr := inboundToCommand(proto.Inbound{Type: tt.typ, Data: json.RawMessage(tt.data)})
			if tt.wantErr {
				if perr == nil || perr.Code != core.ErrCodeBadRequest {
					t.Fatalf("expected bad_request, got %v", perr)
				}
				return
			}
			if perr != nil {
				t.Fatalf("unexpected error: %v", perr)
			}
			if cmd.Kind != tt.kind || cmd.RoomID != tt.room {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			if cmd.Draft.Type != tt.msgType {
				t.Fatalf("draft type = %q, want %q", cmd.Draft.Type, tt.msgType)
			}
		})
	}
}

func TestOutboundFromEvent(t *testing.T) {
	bob := &core.Identity{ID: "u-bob", DisplayName: "Bob"}
	now := time.Now().UTC()

	out := outboundFromEvent(&core.Event{
		Kind:   core.EventNewMessage,
		RoomID: "r1",
		Message: &core.Message{
			ID: "m1", RoomID: "r1", Sender: bob, Type: store.MessageTypeText,
			Content: "hi", CreatedAt: now, UpdatedAt: now,
		},
	})
	if out.Type != proto.OutboundNewMessage {
		t.Fatalf("type = %q", out.Type)
	}
	msg, ok := out.Data.(proto.Message)
	if !ok || msg.Type != "TEXT" || msg.Sender == nil || msg.Sender.ID != "u-bob" {
		t.Fatalf("unexpected payload: %#v", out.Data)
	}

	system := outboundFromEvent(&core.Event{
		Kind:    core.EventNewMessage,
		RoomID:  "r1",
		Message: &core.Message{ID: "m2", RoomID: "r1", Type: store.MessageTypeSystem, Content: "Bob added Carol"},
	})
	raw, err := json.Marshal(system)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sender, present := decoded.Data["sender"]; !present || sender != nil {
		t.Fatalf("system message should carry sender:null, got %v (present=%v)", sender, present)
	}

	offline := outboundFromEvent(&core.Event{Kind: core.EventUserOffline, User: bob})
	if offline.Type != proto.OutboundUserOffline || offline.Data.(proto.UserOffline).UserID != "u-bob" {
		t.Fatalf("unexpected offline frame: %+v", offline)
	}

	deleted := outboundFromEvent(&core.Event{Kind: core.EventMessageDeleted, RoomID: "r1", MessageID: "m1"})
	if d := deleted.Data.(proto.MessageDeleted); d.ID != "m1" || d.ChatRoomID != "r1" {
		t.Fatalf("unexpected delete frame: %+v", deleted)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "", token: "", ok: true},
		{header: "Bearer abc", token: "abc", ok: true},
		{header: "bearer  abc ", token: "abc", ok: true},
		{header: "Basic abc", ok: false},
		{header: "abc", ok: false},
	}

	for _, tt := range tests {
		token, ok := bearerToken(tt.header)
		if token != tt.token || ok != tt.ok {
			t.Fatalf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, token, ok, tt.token, tt.ok)
		}
	}
}
