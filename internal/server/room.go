package server

import (
	"log"
	"slices"
	"time"

	"github.com/studyspot/roomsync/internal/database"
	"github.com/studyspot/roomsync/internal/types"
)

type exitReq struct {
	deleted bool
}

// Room owns the authoritative state of one study session: roster, to-do
// lists and the version counter. All mutations happen on the room's
// goroutine (the start loop), which is the per-room serialization point:
// the order in which messages are drained determines the order of
// assigned sequence numbers and the order of broadcast.
type Room struct {
	id      int
	code    string
	name    string
	version int
	lists   []*types.List

	cs         *SyncServer
	joinChan   chan *ClientMessage
	leaveChan  chan *ClientMessage
	eventChan  chan *ClientMessage
	rosterChan chan chan []types.Participant

	clients map[*Client]struct{}
	userMap map[int]*Client
	roster  []types.Participant

	log *log.Logger
	// killTimer reaps the room after the grace period once the roster
	// empties; a rejoin before expiry cancels it
	killTimer   *time.Timer
	gracePeriod time.Duration

	exit chan exitReq
	done chan struct{}
}

func newRoom(cs *SyncServer, session database.Session, lists []database.List) *Room {
	r := &Room{
		id:          session.Id,
		code:        session.Code,
		name:        session.Name,
		version:     session.Version,
		cs:          cs,
		joinChan:    make(chan *ClientMessage, 256),
		leaveChan:   make(chan *ClientMessage, 256),
		eventChan:   make(chan *ClientMessage, 256),
		rosterChan:  make(chan chan []types.Participant),
		clients:     make(map[*Client]struct{}),
		userMap:     make(map[int]*Client),
		log:         cs.log,
		gracePeriod: cs.gracePeriod,
		exit:        make(chan exitReq),
		done:        make(chan struct{}),
	}

	for _, dbList := range lists {
		list := &types.List{
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
		r.lists = append(r.lists, list)
	}

	return r
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.code)
	r.killTimer = time.NewTimer(r.gracePeriod)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.eventChan:
			r.handleEvent(msg)
		case resp := <-r.rosterChan:
			resp <- r.rosterSnapshot()
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			close(r.done)
			return
		}
	}
}

// advanceVersion commits an accepted mutation: the version increments by
// exactly one and the new value is written through to the repository.
// Write-through failure is logged, never surfaced; the in-memory state
// remains authoritative and the next accepted mutation heals the row.
func (r *Room) advanceVersion() int {
	r.version++
	if err := r.cs.db.UpdateSessionVersion(r.id, r.version); err != nil {
		r.log.Printf("room %q: persist version %d: %v", r.code, r.version, err)
	}

	return r.version
}

func (r *Room) handleJoin(join *ClientMessage) {
	// cancel any pending reap, a client is here
	r.killTimer.Stop()

	c := join.client

	if prev, ok := r.userMap[c.user.Id]; ok {
		if prev == c {
			// a re-sent join from a connection already in the room:
			// refresh the snapshot, roster and version stay untouched
			c.queueMessage(r.snapshotMessage(join.Id))
			return
		}

		// the identity reconnected: the new connection replaces the old
		// one, the roster entry survives
		r.log.Printf("evicting connection %q for user %q in room %q", prev.id, c.user.Username, r.code)
		delete(r.clients, prev)
		prev.clearRoom(r.code)
		prev.stopClient()

		r.clients[c] = struct{}{}
		r.userMap[c.user.Id] = c
		for i := range r.roster {
			if r.roster[i].UserId == c.user.Id {
				r.roster[i].ConnectionId = c.id
			}
		}
		c.setRoom(r)

		c.queueMessage(r.snapshotMessage(join.Id))
		return
	}

	r.clients[c] = struct{}{}
	r.userMap[c.user.Id] = c
	r.roster = append(r.roster, types.Participant{
		UserId:       c.user.Id,
		Username:     c.user.Username,
		ConnectionId: c.id,
	})
	c.setRoom(r)

	// the roster change is a room mutation like any other: sequenced and
	// fanned out; the joiner's snapshot already includes it
	seq := r.advanceVersion()
	r.cs.stats.Incr(metricEventsAccepted)
	c.queueMessage(r.snapshotMessage(join.Id))
	r.broadcast(&ServerMessage{
		Op: OpEvent,
		Event: &Event{
			Sequence: seq,
			Type:     OpParticipantsUpdate,
			Payload:  EventPayload{Participants: r.rosterSnapshot()},
		},
		SkipClient: c,
	})
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	c := leaveMsg.client

	if _, ok := r.clients[c]; !ok {
		// already gone: unregister is idempotent (explicit leave and
		// socket teardown may both arrive)
		return
	}

	r.log.Printf("removing connection %q (user %q) from room %q", c.id, c.user.Username, r.code)
	delete(r.clients, c)
	c.clearRoom(r.code)

	wasMember := r.userMap[c.user.Id] == c
	if wasMember {
		delete(r.userMap, c.user.Id)
		r.roster = slices.DeleteFunc(r.roster, func(p types.Participant) bool {
			return p.UserId == c.user.Id
		})
	}

	if leaveMsg.Id != 0 {
		// explicit leave gets an ack; a dropped socket has no one to tell
		c.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	if wasMember {
		seq := r.advanceVersion()
		r.cs.stats.Incr(metricEventsAccepted)
		r.broadcast(&ServerMessage{
			Op: OpEvent,
			Event: &Event{
				Sequence: seq,
				Type:     OpParticipantsUpdate,
				Payload:  EventPayload{Participants: r.rosterSnapshot()},
			},
			SkipClient: c,
		})
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting grace timer", r.code)
		r.killTimer.Reset(r.gracePeriod)
	}
}

func (r *Room) handleEvent(msg *ClientMessage) {
	switch msg.Op {
	case OpAddTask:
		r.handleAddTask(msg)
	case OpToggleTask:
		r.handleToggleTask(msg)
	case OpRemoveTask:
		r.handleRemoveTask(msg)
	case OpAddList:
		r.handleAddList(msg)
	case OpDeleteList:
		r.handleDeleteList(msg)
	default:
		r.reject(msg.client, ErrInvalidMessage(msg.Id))
	}
}

func (r *Room) handleAddTask(msg *ClientMessage) {
	list := r.findList(msg.ListId)
	if list == nil {
		r.reject(msg.client, ErrListNotFound(msg.Id))
		return
	}

	dbTask, err := r.cs.db.CreateTask(database.CreateTaskParams{
		SessionId: r.id,
		ListId:    list.Id,
		Title:     msg.Title,
		Content:   msg.Content,
	})
	if err != nil {
		r.log.Println("CreateTask:", err)
		r.reject(msg.client, ErrInternalError(msg.Id))
		return
	}

	task := types.Task{
		Id:          dbTask.Id,
		ListId:      list.Id,
		Title:       dbTask.Title,
		Content:     dbTask.Content,
		IsCompleted: dbTask.IsCompleted,
	}
	list.Tasks = append(list.Tasks, task)

	seq := r.advanceVersion()
	r.cs.stats.Incr(metricEventsAccepted)
	msg.client.queueMessage(NoErrAccepted(msg.Id))
	r.broadcast(&ServerMessage{
		Op: OpEvent,
		Event: &Event{
			Sequence: seq,
			Type:     OpAddTask,
			Payload:  EventPayload{Task: &task},
		},
	})
}

func (r *Room) handleToggleTask(msg *ClientMessage) {
	_, task := r.findTask(msg.TaskId)
	if task == nil {
		r.reject(msg.client, ErrTaskNotFound(msg.Id))
		return
	}

	completed := !task.IsCompleted
	if err := r.cs.db.UpdateTaskCompleted(task.Id, completed); err != nil {
		r.log.Println("UpdateTaskCompleted:", err)
		r.reject(msg.client, ErrInternalError(msg.Id))
		return
	}

	task.IsCompleted = completed

	seq := r.advanceVersion()
	r.cs.stats.Incr(metricEventsAccepted)
	msg.client.queueMessage(NoErrAccepted(msg.Id))
	r.broadcast(&ServerMessage{
		Op: OpEvent,
		Event: &Event{
			Sequence: seq,
			Type:     OpToggleTask,
			Payload: EventPayload{
				TaskId:      task.Id,
				IsCompleted: &completed,
			},
		},
	})
}

func (r *Room) handleRemoveTask(msg *ClientMessage) {
	list, task := r.findTask(msg.TaskId)
	if task == nil {
		r.reject(msg.client, ErrTaskNotFound(msg.Id))
		return
	}

	if err := r.cs.db.DeleteTask(task.Id); err != nil {
		r.log.Println("DeleteTask:", err)
		r.reject(msg.client, ErrInternalError(msg.Id))
		return
	}

	taskId := task.Id
	list.Tasks = slices.DeleteFunc(list.Tasks, func(t types.Task) bool {
		return t.Id == taskId
	})

	seq := r.advanceVersion()
	r.cs.stats.Incr(metricEventsAccepted)
	msg.client.queueMessage(NoErrAccepted(msg.Id))
	r.broadcast(&ServerMessage{
		Op: OpEvent,
		Event: &Event{
			Sequence: seq,
			Type:     OpRemoveTask,
			Payload: EventPayload{
				TaskId: taskId,
				ListId: list.Id,
			},
		},
	})
}

func (r *Room) handleAddList(msg *ClientMessage) {
	dbList, err := r.cs.db.CreateList(database.CreateListParams{
		SessionId: r.id,
		Name:      msg.Name,
	})
	if err != nil {
		r.log.Println("CreateList:", err)
		r.reject(msg.client, ErrInternalError(msg.Id))
		return
	}

	list := &types.List{
		Id:    dbList.Id,
		Name:  dbList.Name,
		Tasks: make([]types.Task, 0),
	}
	r.lists = append(r.lists, list)

	seq := r.advanceVersion()
	r.cs.stats.Incr(metricEventsAccepted)
	msg.client.queueMessage(NoErrAccepted(msg.Id))
	r.broadcast(&ServerMessage{
		Op: OpEvent,
		Event: &Event{
			Sequence: seq,
			Type:     OpAddList,
			Payload:  EventPayload{List: copyList(list)},
		},
	})
}

func (r *Room) handleDeleteList(msg *ClientMessage) {
	list := r.findList(msg.ListId)
	if list == nil {
		r.reject(msg.client, ErrListNotFound(msg.Id))
		return
	}

	// deleting a list deletes its tasks with it
	if err := r.cs.db.DeleteList(list.Id); err != nil {
		r.log.Println("DeleteList:", err)
		r.reject(msg.client, ErrInternalError(msg.Id))
		return
	}

	listId := list.Id
	r.lists = slices.DeleteFunc(r.lists, func(l *types.List) bool {
		return l.Id == listId
	})

	seq := r.advanceVersion()
	r.cs.stats.Incr(metricEventsAccepted)
	msg.client.queueMessage(NoErrAccepted(msg.Id))
	r.broadcast(&ServerMessage{
		Op: OpEvent,
		Event: &Event{
			Sequence: seq,
			Type:     OpDeleteList,
			Payload:  EventPayload{ListId: listId},
		},
	})
}

func (r *Room) reject(c *Client, msg *ServerMessage) {
	r.cs.stats.Incr(metricEventsRejected)
	if c != nil {
		c.queueMessage(msg)
	}
}

func (r *Room) findList(listId int) *types.List {
	for _, list := range r.lists {
		if list.Id == listId {
			return list
		}
	}

	return nil
}

func (r *Room) findTask(taskId int) (*types.List, *types.Task) {
	for _, list := range r.lists {
		for i := range list.Tasks {
			if list.Tasks[i].Id == taskId {
				return list, &list.Tasks[i]
			}
		}
	}

	return nil, nil
}

// snapshotMessage builds the full-state message for a joiner. Lists are
// deep-copied: the message is serialized on the client's write goroutine
// while the room keeps mutating its own state.
func (r *Room) snapshotMessage(id int) *ServerMessage {
	lists := make([]types.List, 0, len(r.lists))
	for _, list := range r.lists {
		lists = append(lists, *copyList(list))
	}

	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Op: OpSnapshot,
		Snapshot: &types.Snapshot{
			RoomCode: r.code,
			Name:     r.name,
			Version:  r.version,
			Roster:   r.rosterSnapshot(),
			Lists:    lists,
		},
	}
}

func (r *Room) rosterSnapshot() []types.Participant {
	return slices.Clone(r.roster)
}

func copyList(list *types.List) *types.List {
	cp := &types.List{
		Id:    list.Id,
		Name:  list.Name,
		Tasks: slices.Clone(list.Tasks),
	}
	return cp
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q empty past grace period, unloading", r.code)
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomCode: r.code}:
	default:
		// server busy; try again next period
		r.killTimer.Reset(r.gracePeriod)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.code)
	if e.deleted {
		// the session was deleted through the API, tell everyone
		r.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{
				Timestamp: Now(),
			},
			Op: OpNotification,
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomCode: r.code},
			},
		})
	}

	for c := range r.clients {
		c.clearRoom(r.code)
	}
}

// broadcast fans msg out to every connection in the room except
// msg.SkipClient, in the order mutations were accepted. A connection
// whose send queue is full is dropped rather than allowed to stall the
// others.
func (r *Room) broadcast(msg *ServerMessage) {
	msg.Timestamp = Now()

	var stalled []*Client
	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		if !client.queueMessage(msg) {
			stalled = append(stalled, client)
		}
	}

	for _, client := range stalled {
		r.log.Printf("dropping stalled connection %q in room %q", client.id, r.code)
		r.handleLeave(&ClientMessage{client: client})
		client.stopClient()
	}
}
