package pb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a payload is not a JSON object with a string "type".
	ErrMalformed = errors.New("pb: malformed message")
	// ErrUnknownType is returned when the "type" field names no known kind.
	ErrUnknownType = errors.New("pb: unknown message type")
)

var requestKinds = map[Type]func() Request{
	TypeRegister:     func() Request { return &Register{} },
	TypeLogin:        func() Request { return &Login{} },
	TypeChat:         func() Request { return &Chat{} },
	TypeJoinRoom:     func() Request { return &JoinRoom{} },
	TypeCreateRoom:   func() Request { return &CreateRoom{} },
	TypeGetRooms:     func() Request { return &GetRooms{} },
	TypeGetUsers:     func() Request { return &GetUsers{} },
	TypeAdminCommand: func() Request { return &AdminCommand{} },
	TypePing:         func() Request { return &Ping{} },
}

var eventKinds = map[Type]func() Event{
	TypeRegisterSuccess: func() Event { return &RegisterSuccess{} },
	TypeLoginSuccess:    func() Event { return &LoginSuccess{} },
	TypeChatMessage:     func() Event { return &ChatMessage{} },
	TypeRoomJoined:      func() Event { return &RoomJoined{} },
	TypeRoomCreated:     func() Event { return &RoomCreated{} },
	TypeRoomsList:       func() Event { return &RoomsList{} },
	TypeUsersList:       func() Event { return &UsersList{} },
	TypeAdminResponse:   func() Event { return &AdminResponse{} },
	TypeError:           func() Event { return &Error{} },
	TypeUserJoined:      func() Event { return &UserJoined{} },
	TypeUserLeft:        func() Event { return &UserLeft{} },
	TypePong:            func() Event { return &Pong{} },
}

type envelope struct {
	Type Type `json:"type"`
}

// Marshal encodes msg as a flat JSON object with its "type" field first.
func Marshal(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("pb: marshal %s: %w", msg.Kind(), err)
	}
	typ, err := json.Marshal(msg.Kind())
	if err != nil {
		return nil, fmt.Errorf("pb: marshal %s: %w", msg.Kind(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(typ) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func peekType(data []byte) (Type, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env.Type, nil
}

// DecodeRequest decodes a client → server payload into its concrete kind.
// The returned value is always a pointer (e.g. *Login).
func DecodeRequest(data []byte) (Request, error) {
	typ, err := peekType(data)
	if err != nil {
		return nil, err
	}
	newReq, ok := requestKinds[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	req := newReq()
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	return req, nil
}

// DecodeEvent decodes a server → client payload into its concrete kind.
// The returned value is always a pointer (e.g. *ChatMessage).
func DecodeEvent(data []byte) (Event, error) {
	typ, err := peekType(data)
	if err != nil {
		return nil, err
	}
	newEvt, ok := eventKinds[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	evt := newEvt()
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	return evt, nil
}
