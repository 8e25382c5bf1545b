package database

import "time"

type Session struct {
	Id        int
	Code      string
	Name      string
	OwnerId   int
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type List struct {
	Id        int
	SessionId int
	Name      string
	Tasks     []Task
	CreatedAt time.Time
}

type Task struct {
	Id          int
	SessionId   int
	ListId      int
	Title       string
	Content     string
	IsCompleted bool
	CreatedAt   time.Time
}

type CreateSessionParams struct {
	Code     string
	Name     string
	OwnerId  int
	ListName string
}

type CreateListParams struct {
	SessionId int
	Name      string
}

type CreateTaskParams struct {
	SessionId int
	ListId    int
	Title     string
	Content   string
}
