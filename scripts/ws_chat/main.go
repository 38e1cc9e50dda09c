package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

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
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "access token")
	room := flag.String("room", "", "room ID to talk in")
	flag.Parse()

	if *token == "" || *room == "" {
		return errors.New("-token and -room are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
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

	fmt.Printf("Connected to %s in room %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. /typing, /stop, /room <id>. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var in frame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch in.Type {
		case proto.OutboundNewMessage, proto.OutboundMessageUpdated:
			var msg proto.Message
			if err := json.Unmarshal(in.Data, &msg); err != nil {
				log.Printf("unmarshal %s: %v", in.Type, err)
				continue
			}
			who := "system"
			if msg.Sender != nil {
				who = msg.Sender.Name
			}
			fmt.Printf("[%s] %s: %s\n", msg.ChatRoomID, who, msg.Content)
		case proto.OutboundUserTyping:
			var evt proto.UserTyping
			if err := json.Unmarshal(in.Data, &evt); err != nil {
				continue
			}
			if evt.IsTyping {
				fmt.Printf("[%s] %s is typing...\n", evt.RoomID, evt.Name)
			}
		case proto.OutboundUserJoined, proto.OutboundUserOnline:
			var evt proto.UserPresence
			if err := json.Unmarshal(in.Data, &evt); err != nil {
				continue
			}
			fmt.Printf("%s: %s\n", in.Type, evt.Name)
		case proto.OutboundError:
			var e proto.Error
			if err := json.Unmarshal(in.Data, &e); err != nil {
				continue
			}
			fmt.Printf("error (%s): %s\n", e.Code, e.Message)
		default:
			fmt.Printf("%s %s\n", in.Type, in.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	send := func(typ string, data any) bool {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("marshal %s: %v", typ, err)
			return false
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			log.Printf("send error: %v", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			var sent bool
			switch {
			case text == "":
				continue
			case text == "/typing" || text == "/stop":
				sent = send(proto.InboundTyping, proto.TypingData{RoomID: room, IsTyping: text == "/typing"})
			case strings.HasPrefix(text, "/room "):
				room = strings.TrimSpace(strings.TrimPrefix(text, "/room "))
				sent = send(proto.InboundJoinRoom, proto.RoomData{RoomID: room})
			default:
				sent = send(proto.InboundSendMessage, proto.SendMessageData{Content: text, ChatRoomID: room})
			}
			if !sent {
				return
			}
		}
	}
}
