package server

import (
	"net/http"
	"time"

	"github.com/studyspot/roomsync/internal/types"
)

// Client-submitted operations.
const (
	OpJoin       = "join"
	OpLeave      = "leave"
	OpAddTask    = "add_task"
	OpToggleTask = "toggle_task"
	OpRemoveTask = "remove_task"
	OpAddList    = "add_list"
	OpDeleteList = "delete_list"
	// OpParticipantsUpdate is server-generated only; a client submitting
	// it is rejected with Forbidden.
	OpParticipantsUpdate = "participants_update"
)

// Server-to-client message kinds.
const (
	OpResponse     = "response"
	OpSnapshot     = "snapshot"
	OpEvent        = "event"
	OpError        = "error"
	OpNotification = "notification"
)

// Rejection reasons returned to the originating client.
const (
	ReasonRoomNotFound       = "RoomNotFound"
	ReasonListNotFound       = "ListNotFound"
	ReasonTaskNotFound       = "TaskNotFound"
	ReasonForbidden          = "Forbidden"
	ReasonInvalidMessage     = "InvalidMessage"
	ReasonInternalError      = "InternalError"
	ReasonServiceUnavailable = "ServiceUnavailable"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the flat op-discriminated envelope submitted by
// clients: {"id": n, "op": "add_task", "list_id": 1, "title": "..."}.
type ClientMessage struct {
	BaseMessage
	Op       string  `json:"op"`
	RoomCode string  `json:"room_code,omitempty"`
	ListId   int     `json:"list_id,omitempty"`
	TaskId   int     `json:"task_id,omitempty"`
	Title    string  `json:"title,omitempty"`
	Content  string  `json:"content,omitempty"`
	Name     string  `json:"name,omitempty"`
	UserId   int     `json:"-"`
	client   *Client `json:"-"`
}

func (cm *ClientMessage) GetUserId() int {
	if cm.UserId != 0 {
		return cm.UserId
	}
	if cm.client != nil {
		return cm.client.user.Id
	}
	return 0
}

// Event is an accepted, sequenced room mutation as broadcast to clients.
type Event struct {
	Sequence int          `json:"sequence,omitempty"`
	Type     string       `json:"type,omitempty"`
	Payload  EventPayload `json:"payload"`
}

type EventPayload struct {
	Task         *types.Task         `json:"task,omitempty"`
	List         *types.List         `json:"list,omitempty"`
	TaskId       int                 `json:"task_id,omitempty"`
	ListId       int                 `json:"list_id,omitempty"`
	IsCompleted  *bool               `json:"is_completed,omitempty"`
	Participants []types.Participant `json:"participants,omitempty"`
}

type Response struct {
	Code int `json:"code"`
	Data any `json:"data,omitempty"`
}

type Notification struct {
	RoomDeleted *RoomDeleted `json:"room_deleted,omitempty"`
}

type RoomDeleted struct {
	RoomCode string `json:"room_code"`
}

// ServerMessage is the envelope for everything the server sends. Exactly
// one of the optional sections is set, matching Op. Snapshot and Event
// are embedded so their fields serialize at the top level:
// {"op":"snapshot","version":3,...}, {"op":"event","sequence":4,...}.
type ServerMessage struct {
	BaseMessage
	Op string `json:"op"`
	*types.Snapshot
	*Event
	Reason       string        `json:"reason,omitempty"`
	Response     *Response     `json:"response,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	SkipClient   *Client       `json:"-"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Op: OpResponse,
		Response: &Response{
			Code: http.StatusOK,
			Data: data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Op: OpResponse,
		Response: &Response{
			Code: http.StatusAccepted,
		},
	}
}

func errorMessage(id int, reason string) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Op:     OpError,
		Reason: reason,
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func ErrRoomNotFound(id int) *ServerMessage {
	return errorMessage(id, ReasonRoomNotFound)
}

func ErrListNotFound(id int) *ServerMessage {
	return errorMessage(id, ReasonListNotFound)
}

func ErrTaskNotFound(id int) *ServerMessage {
	return errorMessage(id, ReasonTaskNotFound)
}

func ErrForbidden(id int) *ServerMessage {
	return errorMessage(id, ReasonForbidden)
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errorMessage(id, ReasonInvalidMessage)
}

func ErrInternalError(id int) *ServerMessage {
	return errorMessage(id, ReasonInternalError)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errorMessage(id, ReasonServiceUnavailable)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
