package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"colonysim/internal/protocol"
	"colonysim/internal/sim/colony"
)

// Hub fans tick summaries out to websocket observers. It is a colony sink:
// WriteTick never blocks the simulation, a slow observer loses old ticks.
type Hub struct {
	log   *log.Logger
	hello HelloMsg

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	lastTick atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber
}

type subscriber struct {
	out chan []byte

	mu     sync.Mutex
	agents map[string]bool
	events bool
}

func NewHub(hello HelloMsg, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	hello.Type = protocol.TypeHello
	hello.ProtocolVersion = protocol.Version
	return &Hub{
		log:   logger,
		hello: hello,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[string]*subscriber{},
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) WriteTick(e colony.TickEntry) error {
	h.lastTick.Store(e.Tick)
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		b, err := json.Marshal(s.tickMsg(e))
		if err != nil {
			return err
		}
		sendLatest(s.out, b)
	}
	return nil
}

func (s *subscriber) set(sub SubscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = sub.Events
	s.agents = nil
	if len(sub.Agents) > 0 {
		s.agents = map[string]bool{}
		for _, id := range sub.Agents {
			s.agents[id] = true
		}
	}
}

// tickMsg builds the subscriber's view of e.
func (s *subscriber) tickMsg(e colony.TickEntry) TickMsg {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		Tick:            e.Tick,
		Time:            e.Time,
		Digest:          e.Digest,
		Jobs:            e.Jobs,
		Agents:          e.Agents,
	}
	if s.events {
		msg.Events = e.Events
	}
	if s.agents == nil {
		return msg
	}
	msg.Agents = nil
	for _, a := range e.Agents {
		if s.agents[a.ID] {
			msg.Agents = append(msg.Agents, a)
		}
	}
	if s.events {
		msg.Events = nil
		for _, ev := range e.Events {
			if id, _ := ev["agent_id"].(string); s.agents[id] {
				msg.Events = append(msg.Events, ev)
			}
		}
	}
	return msg
}

func (h *Hub) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", h.nextID.Add(1))
		hello := h.hello
		hello.SessionID = sid
		hello.Tick = h.lastTick.Load()
		if err := writeJSON(conn, hello); err != nil {
			return
		}

		s := &subscriber{out: make(chan []byte, 8)}
		s.set(sub)
		h.mu.Lock()
		h.subs[sid] = s
		h.mu.Unlock()
		h.log.Printf("observer %s subscribed from %s", sid, r.RemoteAddr)
		defer func() {
			h.mu.Lock()
			delete(h.subs, sid)
			h.mu.Unlock()
			h.log.Printf("observer %s left", sid)
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-s.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := decodeSubscribe(msg); ok {
				s.set(sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func decodeSubscribe(b []byte) (SubscribeMsg, bool) {
	base, err := protocol.DecodeBase(b)
	if err != nil || base.Type != protocol.TypeSubscribe || base.ProtocolVersion != protocol.Version {
		return SubscribeMsg{}, false
	}
	var sub SubscribeMsg
	if err := json.Unmarshal(b, &sub); err != nil {
		return SubscribeMsg{}, false
	}
	return sub, true
}

// sendLatest enqueues b, dropping the oldest queued message when full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
