// Package chat is the messaging-channel adapter: a websocket client
// that turns room events into typed notifications and relays outbound
// messages and reactions.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stagekit/stagecast/internal/core"
	"github.com/stagekit/stagecast/internal/domain"
)

var (
	ErrBackpressure = errors.New("chat send buffer full")
	ErrNotConnected = errors.New("chat not connected")
)

// historyLimit caps the kept message backlog.
const historyLimit = 10

// Message is one displayed chat line.
type Message struct {
	Sender  string `json:"sender,omitempty"`
	Content string `json:"content"`
	Notice  bool   `json:"notice,omitempty"`
}

// Channel implements core.MessagingChannel over a websocket room
// connection. One room at a time; Connect on a live channel replaces
// the previous room.
type Channel struct {
	endpoint string
	events   chan core.ChatEvent

	mu      sync.Mutex
	conn    *roomConn
	history []Message
}

type roomConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func (c *roomConn) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *roomConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

func New(endpoint string) *Channel {
	return &Channel{
		endpoint: endpoint,
		events:   make(chan core.ChatEvent, 64),
	}
}

var _ core.MessagingChannel = (*Channel)(nil)

// Connect dials the room authorized by the token. The token rides the
// websocket subprotocol header.
func (ch *Channel) Connect(ctx context.Context, token domain.ChatToken) error {
	dialer := websocket.Dialer{Subprotocols: []string{token.Token}}
	ws, _, err := dialer.DialContext(ctx, ch.endpoint, http.Header{})
	if err != nil {
		return err
	}

	conn := &roomConn{
		ws:   ws,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
	}

	ch.mu.Lock()
	if ch.conn != nil {
		ch.conn.close()
	}
	ch.conn = conn
	ch.history = nil
	ch.mu.Unlock()

	go ch.writePump(conn)
	go ch.readPump(conn)

	ch.emit(core.ChatEvent{Kind: core.ChatConnected})
	log.Info().Str("module", "adapters.chat").Msg("room connected")
	return nil
}

// Disconnect tears the room down and drops the message backlog.
func (ch *Channel) Disconnect() {
	ch.mu.Lock()
	conn := ch.conn
	ch.conn = nil
	ch.history = nil
	ch.mu.Unlock()
	if conn != nil {
		conn.close()
		log.Info().Str("module", "adapters.chat").Msg("room disconnected")
	}
}

func (ch *Channel) Events() <-chan core.ChatEvent { return ch.events }

// History returns the kept backlog, oldest first.
func (ch *Channel) History() []Message {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]Message(nil), ch.history...)
}

type sendFrame struct {
	Action     string            `json:"action"`
	Content    string            `json:"content"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RequestID  string            `json:"requestId"`
}

func (ch *Channel) SendMessage(content string) error {
	return ch.push(sendFrame{
		Action:    "SEND_MESSAGE",
		Content:   content,
		RequestID: uuid.NewString(),
	})
}

// SendReaction rides the message action with marker attributes, the
// same shape peers use to tell reactions from chat lines.
func (ch *Channel) SendReaction(reaction string) error {
	return ch.push(sendFrame{
		Action:     "SEND_MESSAGE",
		Content:    reaction,
		Attributes: map[string]string{"type": "EVENT", "reaction": reaction},
		RequestID:  uuid.NewString(),
	})
}

func (ch *Channel) push(f sendFrame) error {
	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.trySend(data)
}

func (ch *Channel) writePump(c *roomConn) {
	for data := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "adapters.chat").Msg("write error")
			c.close()
			return
		}
	}
}

func (ch *Channel) readPump(c *roomConn) {
	defer func() {
		c.close()
		ch.emit(core.ChatEvent{Kind: core.ChatDisconnected})
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Deliberate teardown, not a failure.
			default:
				log.Error().Err(err).Str("module", "adapters.chat").Msg("read error")
			}
			return
		}
		ch.handleFrame(data)
	}
}

// recvFrame is the room wire format for inbound traffic.
type recvFrame struct {
	Type       string            `json:"Type"`
	EventName  string            `json:"EventName"`
	Attributes map[string]string `json:"Attributes"`
	Content    string            `json:"Content"`
	Sender     struct {
		Attributes map[string]string `json:"Attributes"`
	} `json:"Sender"`
}

func (ch *Channel) handleFrame(data []byte) {
	var f recvFrame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Error().Err(err).Str("module", "adapters.chat").Msg("bad frame")
		return
	}

	switch f.Type {
	case "EVENT":
		ch.handleEvent(f)
	case "MESSAGE":
		ch.handleMessage(f)
	default:
		log.Debug().Str("module", "adapters.chat").Str("type", f.Type).Msg("unhandled frame type")
	}
}

func (ch *Channel) handleEvent(f recvFrame) {
	switch f.EventName {
	case core.EventModeChange:
		ch.emit(core.ChatEvent{Kind: core.ChatModeChanged, Attributes: f.Attributes})

	case core.EventSeatsChange:
		seats, ok := parseSeats(f.Attributes["seats"])
		if !ok {
			log.Warn().Str("module", "adapters.chat").Str("seats", f.Attributes["seats"]).Msg("unparseable seats event")
			return
		}
		ch.emit(core.ChatEvent{Kind: core.ChatSeatsChanged, Seats: seats})

	case core.EventVoteStart:
		ch.emit(core.ChatEvent{Kind: core.ChatVoteStarted, Attributes: f.Attributes})

	case core.EventVote:
		ch.emit(core.ChatEvent{Kind: core.ChatVotesChanged, Attributes: f.Attributes})

	case core.EventVoteEnd:
		ch.emit(core.ChatEvent{Kind: core.ChatVoteEnded, Attributes: f.Attributes})

	default:
		// Room-generated notices carry their text in the attributes.
		if msg := f.Attributes["message"]; msg != "" {
			ch.record(Message{Content: msg, Notice: true})
			ch.emit(core.ChatEvent{Kind: core.ChatNotice, Content: msg})
		}
		if notice := f.Attributes["notice"]; notice != "" {
			ch.record(Message{Content: notice, Notice: true})
			ch.emit(core.ChatEvent{Kind: core.ChatNotice, Content: notice})
		}
	}
}

func (ch *Channel) handleMessage(f recvFrame) {
	// Reactions ride the message type with marker attributes.
	if f.Attributes["type"] == "EVENT" {
		if reaction := f.Attributes["reaction"]; reaction != "" {
			ch.emit(core.ChatEvent{Kind: core.ChatReaction, Content: reaction, Sender: f.Sender.Attributes[domain.AttrUsername]})
			return
		}
	}

	sender := f.Sender.Attributes[domain.AttrUsername]
	ch.record(Message{Sender: sender, Content: f.Content})
	ch.emit(core.ChatEvent{
		Kind:       core.ChatMessage,
		Attributes: f.Attributes,
		Sender:     sender,
		Content:    f.Content,
	})
}

func (ch *Channel) record(m Message) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.history = append(ch.history, m)
	if len(ch.history) > historyLimit {
		ch.history = ch.history[len(ch.history)-historyLimit:]
	}
}

func (ch *Channel) emit(ev core.ChatEvent) {
	select {
	case ch.events <- ev:
	default:
		log.Warn().Str("module", "adapters.chat").Str("kind", string(ev.Kind)).Msg("event dropped, consumer behind")
	}
}

func parseSeats(raw string) ([]string, bool) {
	if raw == "" {
		return nil, false
	}
	var seats []string
	if err := json.Unmarshal([]byte(raw), &seats); err != nil {
		return nil, false
	}
	return seats, true
}
