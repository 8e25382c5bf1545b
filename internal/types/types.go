package types

import (
	"time"
)

type User struct {
	Id       int    `json:"id"`
	Username string `json:"username"`
}

type Session struct {
	Id        int       `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	OwnerId   int       `json:"owner_id"`
	Version   int       `json:"version"`
	Lists     []List    `json:"lists,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type List struct {
	Id    int    `json:"id"`
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

type Task struct {
	Id          int    `json:"id"`
	ListId      int    `json:"list_id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	IsCompleted bool   `json:"is_completed"`
}

// Participant is a roster entry for a connected user. ConnectionId is an
// internal handle and is never exposed to other clients.
type Participant struct {
	UserId       int    `json:"user_id"`
	Username     string `json:"username"`
	ConnectionId string `json:"-"`
}

// Snapshot is the full room state sent to a newly joined client.
type Snapshot struct {
	RoomCode string        `json:"room_code"`
	Name     string        `json:"name"`
	Version  int           `json:"version"`
	Roster   []Participant `json:"roster"`
	Lists    []List        `json:"lists"`
}
