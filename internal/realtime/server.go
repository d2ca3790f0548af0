package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Authenticator resolves the user behind a connection attempt.
type Authenticator func(r *http.Request) (uuid.UUID, error)

// ActiveCheck reports an error when the user may not hold a session.
type ActiveCheck func(ctx context.Context, appID string, userID uuid.UUID) error

// JWTAuthenticator validates the access token passed in the token query
// parameter or the Authorization header, then runs active.
func JWTAuthenticator(secret []byte, active ActiveCheck) Authenticator {
	return func(r *http.Request) (uuid.UUID, error) {
		raw := r.URL.Query().Get("token")
		if raw == "" {
			if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
				raw = h[7:]
			}
		}
		if raw == "" {
			return uuid.Nil, errors.New("missing token")
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil {
			return uuid.Nil, err
		}
		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			return uuid.Nil, errors.New("invalid sub claim")
		}
		if active != nil {
			appID, _ := claims["app_id"].(string)
			if err := active(r.Context(), appID, userID); err != nil {
				return uuid.Nil, err
			}
		}
		return userID, nil
	}
}

// Server upgrades HTTP connections and registers them with the Hub.
type Server struct {
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, auth Authenticator, allowOrigin func(r *http.Request) bool) *Server {
	return &Server{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin,
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth(r)
	if err != nil {
		http.Error(w, `{"error":true,"message":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := newWSSession(userID, conn)
	s.hub.Register(sess)
	go sess.writePump()
	sess.readPump(func() { s.hub.Unregister(sess) })
}

type wsSession struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan Event

	mu     sync.Mutex
	closed bool
	reason string
	quit   chan struct{}
}

func newWSSession(userID uuid.UUID, conn *websocket.Conn) *wsSession {
	return &wsSession{
		userID: userID,
		conn:   conn,
		send:   make(chan Event, sendBuffer),
		quit:   make(chan struct{}),
	}
}

func (s *wsSession) UserID() uuid.UUID { return s.userID }

func (s *wsSession) Send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

func (s *wsSession) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	close(s.quit)
}

// readPump discards client frames; the channel is server to client only.
func (s *wsSession) readPump(onExit func()) {
	defer func() {
		onExit()
		s.Close("")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "user_id", s.userID.String(), "error", err)
			}
			return
		}
	}
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case ev := <-s.send:
			if err := s.write(ev); err != nil {
				return
			}
		case <-s.quit:
			// Flush what was queued before the close, e.g. accountBlocked.
			for {
				select {
				case ev := <-s.send:
					if err := s.write(ev); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			s.mu.Lock()
			reason := s.reason
			s.mu.Unlock()
			code := websocket.CloseNormalClosure
			if reason != "" {
				code = websocket.ClosePolicyViolation
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *wsSession) write(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode realtime event", "error", err)
		return nil
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}
