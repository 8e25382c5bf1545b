package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/studyspot/roomsync/internal/database"
	"github.com/studyspot/roomsync/internal/server"
	"github.com/studyspot/roomsync/internal/types"
)

const (
	defaultSessionName = "Untitled Study Session"
	defaultListName    = "Shared Tasks"
)

type CreateRoomRequest struct {
	Name     string `json:"name"`
	ListName string `json:"list_name"`
}

type ParticipantsResponse struct {
	RoomCode     string              `json:"room_code"`
	Participants []types.Participant `json:"participants"`
}

func (s *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *App) createRoom(w http.ResponseWriter, r *http.Request) {
	var createRoomReq CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&createRoomReq); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if createRoomReq.Name == "" {
		createRoomReq.Name = defaultSessionName
	}
	if createRoomReq.ListName == "" {
		createRoomReq.ListName = defaultListName
	}

	code, err := s.generateCode()
	if err != nil {
		if errors.Is(err, server.ErrCodeSpaceExhausted) {
			// exhaustion of the code space means something is badly
			// wrong; refuse new rooms and make noise for the operators
			s.log.Printf("ALERT: room code generation exhausted: %v", err)
		} else {
			s.log.Print("generateCode:", err)
		}
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateSessionParams{
		Code:     code,
		Name:     createRoomReq.Name,
		OwnerId:  user.Id,
		ListName: createRoomReq.ListName,
	}

	newSession, err := s.db.CreateSession(params)
	if err != nil {
		s.log.Println("CreateSession:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.Session{
		Id:        newSession.Id,
		Code:      newSession.Code,
		Name:      newSession.Name,
		OwnerId:   newSession.OwnerId,
		Version:   newSession.Version,
		CreatedAt: newSession.CreatedAt,
		UpdatedAt: newSession.UpdatedAt,
	})
}

func (s *App) getRoom(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	session, err := s.db.GetSessionByCode(code)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbLists, err := s.db.GetListsBySession(session.Id)
	if err != nil {
		s.log.Println("GetListsBySession:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	lists := make([]types.List, 0, len(dbLists))
	for _, dbList := range dbLists {
		list := types.List{
			Id:    dbList.Id,
			Name:  dbList.Name,
			Tasks: make([]types.Task, 0, len(dbList.Tasks)),
		}
		for _, dbTask := range dbList.Tasks {
			list.Tasks = append(list.Tasks, types.Task{
				Id:          dbTask.Id,
				ListId:      dbTask.ListId,
				Title:       dbTask.Title,
				Content:     dbTask.Content,
				IsCompleted: dbTask.IsCompleted,
			})
		}
		lists = append(lists, list)
	}

	s.writeJson(w, http.StatusOK, types.Session{
		Id:        session.Id,
		Code:      session.Code,
		Name:      session.Name,
		OwnerId:   session.OwnerId,
		Version:   session.Version,
		Lists:     lists,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	})
}

func (s *App) deleteRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	session, err := s.db.GetSessionByCode(code)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// only the session owner may delete it
	if session.OwnerId != user.Id {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteSession(session.Id); err != nil {
		s.log.Println("DeleteSession:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cs.UnloadRoom(r.Context(), session.Code, true); err != nil {
		s.log.Println("unload room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *App) getParticipants(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	session, err := s.db.GetSessionByCode(code)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roster, err := s.cs.Participants(r.Context(), session.Code)
	if err != nil {
		s.log.Println("participants:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if roster == nil {
		roster = make([]types.Participant, 0)
	}

	s.writeJson(w, http.StatusOK, ParticipantsResponse{
		RoomCode:     session.Code,
		Participants: roster,
	})
}

func (s *App) serveWs(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(user, conn, s.cs, s.log, s.stats)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
