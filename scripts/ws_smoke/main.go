package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/huddle-server/internal/proto"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "access token (see `huddle-server token --email`)")
	room := flag.String("room", "", "room ID to post into")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *room == "" {
		return fmt.Errorf("-token and -room are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	u, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("token", *token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(proto.InboundJoinRoom, proto.RoomData{RoomID: *room}); err != nil {
		return err
	}
	if err := send(proto.InboundSendMessage, proto.SendMessageData{Content: *text, ChatRoomID: *room}); err != nil {
		return err
	}

	for {
		var in frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("Received: type=%s data=%s\n", in.Type, in.Data)

		switch in.Type {
		case proto.OutboundError:
			var e proto.Error
			if err := json.Unmarshal(in.Data, &e); err == nil {
				return fmt.Errorf("server error %s: %s", e.Code, e.Message)
			}
		case proto.OutboundNewMessage:
			var msg proto.Message
			if err := json.Unmarshal(in.Data, &msg); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			if msg.Content == *text {
				fmt.Printf("Round trip ok: id=%s room=%s\n", msg.ID, msg.ChatRoomID)
				return nil
			}
		}
	}
}
