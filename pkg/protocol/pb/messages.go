// Package pb defines the control-plane message kinds. Every message travels as a
// flat JSON object whose "type" field names the kind; the remaining fields are
// the kind's own.
package pb

// Type is the wire discriminator of a control message.
type Type string

// Client → server kinds.
const (
	TypeRegister     Type = "register"
	TypeLogin        Type = "login"
	TypeChat         Type = "chat"
	TypeJoinRoom     Type = "join_room"
	TypeCreateRoom   Type = "create_room"
	TypeGetRooms     Type = "get_rooms"
	TypeGetUsers     Type = "get_users"
	TypeAdminCommand Type = "admin_command"
	TypePing         Type = "ping"
)

// Server → client kinds.
const (
	TypeRegisterSuccess Type = "register_success"
	TypeLoginSuccess    Type = "login_success"
	TypeChatMessage     Type = "chat_message"
	TypeRoomJoined      Type = "room_joined"
	TypeRoomCreated     Type = "room_created"
	TypeRoomsList       Type = "rooms_list"
	TypeUsersList       Type = "users_list"
	TypeAdminResponse   Type = "admin_response"
	TypeError           Type = "error"
	TypeUserJoined      Type = "user_joined"
	TypeUserLeft        Type = "user_left"
	TypePong            Type = "pong"
)

// Admin command names carried in AdminCommand.Command.
const (
	CommandMute   = "mute"
	CommandUnmute = "unmute"
	CommandBan    = "ban"
	CommandKick   = "kick"
	CommandUnban  = "unban"
)

// Message is implemented by every control message kind.
type Message interface {
	Kind() Type
}

// Request is a client → server message. The set is closed to this package.
type Request interface {
	Message
	isRequest()
}

// Event is a server → client message. The set is closed to this package.
type Event interface {
	Message
	isEvent()
}

// ----- Auth -----

type Register struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterSuccess struct {
	Message string `json:"message"`
}

type LoginSuccess struct {
	Username   string `json:"username"`
	IsAdmin    bool   `json:"is_admin"`
	Room       string `json:"room"`
	SessionID  uint32 `json:"session_id"`
	VoiceToken string `json:"voice_token"` // 16 hex chars, prefix of every voice datagram
}

// ----- Chat -----

type Chat struct {
	Message string `json:"message"`
}

type ChatMessage struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Room      string `json:"room,omitempty"`
}

// ----- Rooms -----

type JoinRoom struct {
	Room string `json:"room"`
}

type CreateRoom struct {
	RoomName string `json:"room_name"`
}

type GetRooms struct{}

type GetUsers struct{}

type RoomJoined struct {
	Room string `json:"room"`
}

type RoomCreated struct {
	Room string `json:"room"`
}

type RoomsList struct {
	Rooms map[string]int `json:"rooms"` // room name -> member count
}

type UsersList struct {
	Users []string `json:"users"`
	Room  string   `json:"room,omitempty"`
}

// ----- Presence -----

type UserJoined struct {
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	Room      string `json:"room,omitempty"`
}

type UserLeft struct {
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	Room      string `json:"room,omitempty"`
}

// ----- Admin -----

type AdminCommand struct {
	Command string `json:"command"` // mute, unmute, ban, kick, unban
	Target  string `json:"target"`
	Reason  string `json:"reason,omitempty"`
}

type AdminResponse struct {
	Message string `json:"message"`
}

// ----- Generic -----

type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

func (Register) Kind() Type     { return TypeRegister }
func (Login) Kind() Type        { return TypeLogin }
func (Chat) Kind() Type         { return TypeChat }
func (JoinRoom) Kind() Type     { return TypeJoinRoom }
func (CreateRoom) Kind() Type   { return TypeCreateRoom }
func (GetRooms) Kind() Type     { return TypeGetRooms }
func (GetUsers) Kind() Type     { return TypeGetUsers }
func (AdminCommand) Kind() Type { return TypeAdminCommand }
func (Ping) Kind() Type         { return TypePing }

func (Register) isRequest()     {}
func (Login) isRequest()        {}
func (Chat) isRequest()         {}
func (JoinRoom) isRequest()     {}
func (CreateRoom) isRequest()   {}
func (GetRooms) isRequest()     {}
func (GetUsers) isRequest()     {}
func (AdminCommand) isRequest() {}
func (Ping) isRequest()         {}

func (RegisterSuccess) Kind() Type { return TypeRegisterSuccess }
func (LoginSuccess) Kind() Type    { return TypeLoginSuccess }
func (ChatMessage) Kind() Type     { return TypeChatMessage }
func (RoomJoined) Kind() Type      { return TypeRoomJoined }
func (RoomCreated) Kind() Type     { return TypeRoomCreated }
func (RoomsList) Kind() Type       { return TypeRoomsList }
func (UsersList) Kind() Type       { return TypeUsersList }
func (AdminResponse) Kind() Type   { return TypeAdminResponse }
func (Error) Kind() Type           { return TypeError }
func (UserJoined) Kind() Type      { return TypeUserJoined }
func (UserLeft) Kind() Type        { return TypeUserLeft }
func (Pong) Kind() Type            { return TypePong }

func (RegisterSuccess) isEvent() {}
func (LoginSuccess) isEvent()    {}
func (ChatMessage) isEvent()     {}
func (RoomJoined) isEvent()      {}
func (RoomCreated) isEvent()     {}
func (RoomsList) isEvent()       {}
func (UsersList) isEvent()       {}
func (AdminResponse) isEvent()   {}
func (Error) isEvent()           {}
func (UserJoined) isEvent()      {}
func (UserLeft) isEvent()        {}
func (Pong) isEvent()            {}
