package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateSession(params CreateSessionParams) (Session, error) {
	args := m.Called(params)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockRepository) GetSessionByCode(code string) (Session, error) {
	args := m.Called(code)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockRepository) SessionCodeExists(code string) bool {
	args := m.Called(code)
	return args.Bool(0)
}
func (m *MockRepository) DeleteSession(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) UpdateSessionVersion(sessionId, version int) error {
	args := m.Called(sessionId, version)
	return args.Error(0)
}
func (m *MockRepository) GetListsBySession(sessionId int) ([]List, error) {
	args := m.Called(sessionId)
	if lists, ok := args.Get(0).([]List); ok {
		return lists, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) CreateList(params CreateListParams) (List, error) {
	args := m.Called(params)
	return args.Get(0).(List), args.Error(1)
}
func (m *MockRepository) DeleteList(listId int) error {
	args := m.Called(listId)
	return args.Error(0)
}
func (m *MockRepository) CreateTask(params CreateTaskParams) (Task, error) {
	args := m.Called(params)
	return args.Get(0).(Task), args.Error(1)
}
func (m *MockRepository) UpdateTaskCompleted(taskId int, isCompleted bool) error {
	args := m.Called(taskId, isCompleted)
	return args.Error(0)
}
func (m *MockRepository) DeleteTask(taskId int) error {
	args := m.Called(taskId)
	return args.Error(0)
}
