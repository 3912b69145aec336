package edge

// Path is the HTTP path devices serve the protocol on.
const Path = "/edge"

// Message types.
const (
	TypeHello         = "hello"
	TypeHelloOK       = "hello_ok"
	TypeIAMMe         = "iam.me"
	TypePairLocalOpen = "pair.local_open"
	TypePairOK        = "pair.ok"
	TypeError         = "error"
)

// Error codes.
const (
	CodeWrongDevice      = "WRONG_DEVICE"
	CodeUserDoesNotExist = "USER_DOES_NOT_EXIST"
	CodePairingClosed    = "PAIRING_CLOSED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInternal         = "INTERNAL"
)

// Message is the single JSON frame exchanged over the websocket.
type Message struct {
	Type      string `json:"type"`
	ID        uint64 `json:"id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (m Message) err() error {
	if m.Type != TypeError {
		return nil
	}
	return &DeviceError{Code: m.Code, Message: m.Message}
}
