package hub

import (
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"uptime/internal/wire"
)

// session is one validator connection. gorilla allows a single concurrent
// writer, so the dispatcher and the read loop share writeMu.
type session struct {
	ws           *websocket.Conn
	remote       string
	writeTimeout time.Duration
	writeMu      sync.Mutex

	mu          sync.RWMutex
	validatorID string
	publicKey   ed25519.PublicKey
	keyText     string
}

func newSession(ws *websocket.Conn, remote string, writeTimeout time.Duration) *session {
	return &session{ws: ws, remote: remote, writeTimeout: writeTimeout}
}

func (s *session) send(t wire.MessageType, payload any) error {
	data, err := wire.Encode(t, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeTimeout > 0 {
		_ = s.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *session) activate(validatorID string, pub ed25519.PublicKey, keyText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validatorID = validatorID
	s.publicKey = pub
	s.keyText = keyText
}

// identity returns the validator id and key, or ok=false before signup.
func (s *session) identity() (id string, pub ed25519.PublicKey, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validatorID, s.publicKey, s.validatorID != ""
}

func (s *session) key() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keyText
}

func (s *session) close() error {
	return s.ws.Close()
}
