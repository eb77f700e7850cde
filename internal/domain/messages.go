package domain

// WebSocket message types from client.
const (
	MsgTypeCreateRoom  = "create_room"
	MsgTypeJoinRoom    = "join_room"
	MsgTypeRoomMessage = "room_message"
	MsgTypeLeaveRoom   = "leave_room"
	MsgTypeListRooms   = "list_rooms"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeWelcome          = "welcome"
	MsgTypeCreateRoomResult = "create_room_result"
	MsgTypeRoomJoined       = "room_joined"
	MsgTypeRoomLeft         = "room_left"
	MsgTypeUserJoined       = "user_joined"
	MsgTypeUserLeft         = "user_left"
	MsgTypeMessage          = "message"
	MsgTypeRoomList         = "room_list"
	MsgTypeError            = "error"
	MsgTypePong             = "pong"
)

// Results carried by create_room_result.
const (
	CreateResultCreated        = "created"
	CreateResultJoinedExisting = "joined_existing"
)

// Error codes
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeValidationError = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeNotInRoom       = "NOT_IN_ROOM"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type CreateRoomMessage struct {
	Type        string `json:"type"`
	RoomName    string `json:"room_name"`
	DisplayName string `json:"display_name"`
	Topic       string `json:"topic"`
}

type JoinRoomMessage struct {
	Type        string `json:"type"`
	RoomName    string `json:"room_name"`
	DisplayName string `json:"display_name"`
}

type RoomMessageIn struct {
	Type        string `json:"type"`
	RoomName    string `json:"room_name"`
	DisplayName string `json:"display_name"`
	Body        string `json:"body"`
}

type LeaveRoomMessage struct {
	Type        string `json:"type"`
	RoomName    string `json:"room_name"`
	DisplayName string `json:"display_name"`
}

// Server -> Client messages

type WelcomeMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
	Timestamp    int64  `json:"timestamp"`
}

type CreateRoomResultMessage struct {
	Type     string   `json:"type"`
	Result   string   `json:"result"`
	RoomName string   `json:"room_name"`
	Topic    string   `json:"topic"`
	Creator  string   `json:"creator"`
	Members  []string `json:"members"`
}

type RoomJoinedMessage struct {
	Type     string   `json:"type"`
	RoomName string   `json:"room_name"`
	Topic    string   `json:"topic"`
	Members  []string `json:"members"`
}

type RoomLeftMessage struct {
	Type     string `json:"type"`
	RoomName string `json:"room_name"`
}

// MemberEventMessage carries user_joined and user_left.
type MemberEventMessage struct {
	Type        string `json:"type"`
	RoomName    string `json:"room_name"`
	DisplayName string `json:"display_name"`
	Timestamp   int64  `json:"timestamp"`
}

type ChatMessageOut struct {
	Type       string `json:"type"`
	MessageID  string `json:"message_id"`
	RoomName   string `json:"room_name"`
	AuthorName string `json:"author_name"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"timestamp"`
}

type RoomSummary struct {
	Name        string   `json:"name"`
	Creator     string   `json:"creator"`
	Topic       string   `json:"topic"`
	Members     []string `json:"members"`
	MemberCount int      `json:"member_count"`
	CreatedAt   int64    `json:"created_at"`
}

type RoomListMessage struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

func NewMemberEvent(msgType, roomName, displayName string, ts int64) *MemberEventMessage {
	return &MemberEventMessage{
		Type:        msgType,
		RoomName:    roomName,
		DisplayName: displayName,
		Timestamp:   ts,
	}
}
