package http

import (
	"encoding/json"
	"strings"

	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/proto"
	"github.com/vovakirdan/huddle-server/internal/store"
)

// Enum values travel upper-case on the wire and lower-case in storage.
func wireEnum(s string) string  { return strings.ToUpper(s) }
func storeEnum(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func inboundToCommand(inbound proto.Inbound) (*core.Command, *core.CoreError) {
	switch inbound.Type {
	case proto.InboundJoinRoom, proto.InboundLeaveRoom:
		var data proto.RoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "invalid %s payload", inbound.Type)
		}
		if data.RoomID == "" {
			return nil, core.NewError(core.ErrCodeBadRequest, "roomId is required")
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundLeaveRoom {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, RoomID: data.RoomID}, nil
	case proto.InboundSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "invalid send-message payload")
		}
		if data.ChatRoomID == "" {
			return nil, core.NewError(core.ErrCodeBadRequest, "chatRoomId is required")
		}
		return &core.Command{
			Kind:   core.CommandSendMessage,
			RoomID: data.ChatRoomID,
			Draft: core.Draft{
				Type:     store.MessageType(storeEnum(data.Type)),
				Content:  data.Content,
				FileURL:  data.FileURL,
				FileName: data.FileName,
			},
		}, nil
	case proto.InboundTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, core.NewError(core.ErrCodeBadRequest, "invalid typing payload")
		}
		if data.RoomID == "" {
			return nil, core.NewError(core.ErrCodeBadRequest, "roomId is required")
		}
		return &core.Command{Kind: core.CommandTyping, RoomID: data.RoomID, IsTyping: data.IsTyping}, nil
	default:
		return nil, core.NewError(core.ErrCodeBadRequest, "unknown event %q", inbound.Type)
	}
}

func messageToProto(m *core.Message) proto.Message {
	out := proto.Message{
		ID:         m.ID,
		Content:    m.Content,
		Type:       wireEnum(string(m.Type)),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		ChatRoomID: m.RoomID,
		FileURL:    m.FileURL,
		FileName:   m.FileName,
		IsEdited:   m.IsEdited,
	}
	if m.Sender != nil {
		out.Sender = &proto.Sender{ID: m.Sender.ID, Name: m.Sender.DisplayName, Avatar: m.Sender.AvatarRef}
	}
	return out
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	user := core.Identity{}
	if event.User != nil {
		user = *event.User
	}

	switch event.Kind {
	case core.EventUserOnline:
		return proto.Outbound{
			Type: proto.OutboundUserOnline,
			Data: proto.UserPresence{UserID: user.ID, Name: user.DisplayName, Avatar: user.AvatarRef},
		}
	case core.EventUserOffline:
		return proto.Outbound{
			Type: proto.OutboundUserOffline,
			Data: proto.UserOffline{UserID: user.ID},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type: proto.OutboundUserJoined,
			Data: proto.UserPresence{UserID: user.ID, Name: user.DisplayName, Avatar: user.AvatarRef, RoomID: event.RoomID},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Type: proto.OutboundUserLeft,
			Data: proto.UserLeft{UserID: user.ID, Name: user.DisplayName, RoomID: event.RoomID},
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type: proto.OutboundUserTyping,
			Data: proto.UserTyping{UserID: user.ID, Name: user.DisplayName, IsTyping: event.IsTyping, RoomID: event.RoomID},
		}
	case core.EventNewMessage, core.EventMessageUpdated:
		typ := proto.OutboundNewMessage
		if event.Kind == core.EventMessageUpdated {
			typ = proto.OutboundMessageUpdated
		}
		return proto.Outbound{Type: typ, Data: messageToProto(event.Message)}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type: proto.OutboundMessageDeleted,
			Data: proto.MessageDeleted{ID: event.MessageID, ChatRoomID: event.RoomID},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundError, Data: proto.Error{Message: "unknown error"}}
		}
		return proto.Outbound{
			Type: proto.OutboundError,
			Data: proto.Error{Message: event.Error.Message, Code: event.Error.Code},
		}
	default:
		return proto.Outbound{Type: proto.OutboundError, Data: proto.Error{Message: "unknown event"}}
	}
}
