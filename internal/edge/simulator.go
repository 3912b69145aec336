package edge

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// SimUser is a user registered on a simulated device.
type SimUser struct {
	Username string `yaml:"username"`
	ClientID string `yaml:"client_id"`
	Role     string `yaml:"role"`
}

// Simulator serves the device protocol for a single simulated device.
type Simulator struct {
	productID string
	deviceID  string
	logger    *slog.Logger

	mu          sync.Mutex
	users       map[string]SimUser // by client ID
	pairingOpen bool
	pairingRole string
	unreachable bool
	failCode    string
}

// NewSimulator creates a simulated device with open pairing disabled.
func NewSimulator(productID, deviceID string, logger *slog.Logger) *Simulator {
	return &Simulator{
		productID:   productID,
		deviceID:    deviceID,
		logger:      logger,
		users:       make(map[string]SimUser),
		pairingRole: "Guest",
	}
}

// ProductID returns the simulated product ID.
func (s *Simulator) ProductID() string { return s.productID }

// DeviceID returns the simulated device ID.
func (s *Simulator) DeviceID() string { return s.deviceID }

// AddUser registers or replaces a user.
func (s *Simulator) AddUser(u SimUser) {
	s.mu.Lock()
	s.users[u.ClientID] = u
	s.mu.Unlock()
}

// Users lists registered users sorted by username.
func (s *Simulator) Users() []SimUser {
	s.mu.Lock()
	out := make([]SimUser, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// SetPairingOpen enables open local pairing; new users get role.
func (s *Simulator) SetPairingOpen(open bool, role string) {
	s.mu.Lock()
	s.pairingOpen = open
	if role != "" {
		s.pairingRole = role
	}
	s.mu.Unlock()
}

// SetUnreachable makes the device refuse every socket, so clients see it offline.
func (s *Simulator) SetUnreachable(v bool) {
	s.mu.Lock()
	s.unreachable = v
	s.mu.Unlock()
}

// SetFailure makes every request after the hello fail with code.
// An empty code restores normal behavior.
func (s *Simulator) SetFailure(code string) {
	s.mu.Lock()
	s.failCode = code
	s.mu.Unlock()
}

// Handler returns a router serving the protocol at Path.
func (s *Simulator) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle(Path, s).Methods(http.MethodGet)
	return r
}

func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	unreachable := s.unreachable
	s.mu.Unlock()
	if unreachable {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	s.serve(r.Context(), ws)
}

func (s *Simulator) serve(ctx context.Context, ws *websocket.Conn) {
	var hello Message
	if err := wsjson.Read(ctx, ws, &hello); err != nil {
		return
	}
	if hello.Type != TypeHello || hello.ProductID != s.productID || hello.DeviceID != s.deviceID {
		wsjson.Write(ctx, ws, Message{Type: TypeError, ID: hello.ID, Code: CodeWrongDevice})
		return
	}
	if err := wsjson.Write(ctx, ws, Message{Type: TypeHelloOK, ID: hello.ID}); err != nil {
		return
	}
	clientID := hello.ClientID
	s.logger.Debug("client connected", "client_id", clientID, "username", hello.Username)

	for {
		var req Message
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			return
		}
		if err := wsjson.Write(ctx, ws, s.handle(clientID, req)); err != nil {
			return
		}
	}
}

func (s *Simulator) handle(clientID string, req Message) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCode != "" {
		return Message{Type: TypeError, ID: req.ID, Code: s.failCode}
	}

	switch req.Type {
	case TypeIAMMe:
		u, ok := s.users[clientID]
		if !ok {
			return Message{Type: TypeError, ID: req.ID, Code: CodeUserDoesNotExist}
		}
		return Message{Type: TypeIAMMe, ID: req.ID, Username: u.Username, Role: u.Role}

	case TypePairLocalOpen:
		if !s.pairingOpen {
			return Message{Type: TypeError, ID: req.ID, Code: CodePairingClosed}
		}
		if req.Username == "" {
			return Message{Type: TypeError, ID: req.ID, Code: CodeBadRequest, Message: "username required"}
		}
		u := SimUser{Username: req.Username, ClientID: clientID, Role: s.pairingRole}
		s.users[clientID] = u
		s.logger.Info("client paired", "client_id", clientID, "username", u.Username, "role", u.Role)
		return Message{Type: TypePairOK, ID: req.ID, Role: u.Role}
	}

	return Message{Type: TypeError, ID: req.ID, Code: CodeBadRequest, Message: "unknown type " + req.Type}
}
