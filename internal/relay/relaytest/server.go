// ABOUTME: In-process fake relay speaking the websocket wire protocol, for tests.
// ABOUTME: Serves stored events, EOSE, optional late events after EOSE, and CLOSED rejections.
package relaytest

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harperreed/workoutfeed/internal/relay"
	"nhooyr.io/websocket"
)

// Server is a fake relay.
type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	events    []relay.Event
	late      []relay.Event
	lateDelay time.Duration
	reject    string
	requests  []relay.Filter
	closes    int
}

// New starts a fake relay holding events.
func New(events ...relay.Event) *Server {
	s := &Server{events: append([]relay.Event(nil), events...)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the ws:// address of the relay.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Close stops the relay.
func (s *Server) Close() {
	s.srv.CloseClientConnections()
	s.srv.Close()
}

// AddLate schedules events to be sent delay after EOSE on every subscription.
func (s *Server) AddLate(delay time.Duration, events ...relay.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lateDelay = delay
	s.late = append(s.late, events...)
}

// Reject makes the relay answer every REQ with CLOSED and reason.
func (s *Server) Reject(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = reason
}

// Requests returns the filters received so far.
func (s *Server) Requests() []relay.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.Filter(nil), s.requests...)
}

// Closes returns how many CLOSE messages were received.
func (s *Server) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()
	var writeMu sync.Mutex
	write := func(data []byte) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = ws.Write(ctx, websocket.MessageText, data)
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		label, subID, filters, err := relay.DecodeClientMessage(data)
		if err != nil {
			continue
		}

		switch label {
		case relay.LabelClose:
			s.mu.Lock()
			s.closes++
			s.mu.Unlock()
		case relay.LabelReq:
			s.mu.Lock()
			s.requests = append(s.requests, filters...)
			reject := s.reject
			stored := s.match(s.events, filters)
			late := s.match(s.late, filters)
			delay := s.lateDelay
			s.mu.Unlock()

			if reject != "" {
				write([]byte(`["CLOSED","` + subID + `","` + reject + `"]`))
				continue
			}
			for _, ev := range stored {
				if msg, err := relay.EncodeEvent(subID, ev); err == nil {
					write(msg)
				}
			}
			write(relay.EncodeEOSE(subID))

			if len(late) > 0 {
				go func(subID string, late []relay.Event) {
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return
					}
					for _, ev := range late {
						if msg, err := relay.EncodeEvent(subID, ev); err == nil {
							write(msg)
						}
					}
				}(subID, late)
			}
		}
	}
}

func (s *Server) match(events []relay.Event, filters []relay.Filter) []relay.Event {
	var out []relay.Event
	for _, f := range filters {
		var hits []relay.Event
		for _, ev := range events {
			if !f.Matches(ev) {
				continue
			}
			if f.Since != nil && ev.CreatedAt < *f.Since {
				continue
			}
			if f.Until != nil && ev.CreatedAt > *f.Until {
				continue
			}
			hits = append(hits, ev)
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].CreatedAt > hits[j].CreatedAt })
		if f.Limit > 0 && len(hits) > f.Limit {
			hits = hits[:f.Limit]
		}
		out = append(out, hits...)
	}
	return out
}
