package database

type Repository interface {
	Ping() error
	CreateSession(params CreateSessionParams) (Session, error)
	GetSessionByCode(code string) (Session, error)
	SessionCodeExists(code string) bool
	DeleteSession(id int) error
	UpdateSessionVersion(sessionId, version int) error
	GetListsBySession(sessionId int) ([]List, error)
	CreateList(params CreateListParams) (List, error)
	DeleteList(listId int) error
	CreateTask(params CreateTaskParams) (Task, error)
	UpdateTaskCompleted(taskId int, isCompleted bool) error
	DeleteTask(taskId int) error
}
