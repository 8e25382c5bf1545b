package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/studyspot/roomsync/internal/database"
	"github.com/studyspot/roomsync/internal/stats"
	"github.com/studyspot/roomsync/internal/types"
)

const (
	metricActiveConnections = "ActiveConnections"
	metricActiveRooms       = "ActiveRooms"
	metricEventsAccepted    = "EventsAccepted"
	metricEventsRejected    = "EventsRejected"
)

type unloadRoomRequest struct {
	roomCode string
	deleted  bool
	done     chan struct{}
}

type rosterRequest struct {
	roomCode string
	resp     chan []types.Participant
}

type stopRequest struct {
	done chan struct{}
}

// SyncServer multiplexes all live connections into rooms. It owns the
// room index; rooms are hydrated from the repository on the first join
// and unloaded when empty past the grace period.
type SyncServer struct {
	log            *log.Logger
	db             database.Repository
	stats          stats.StatsProvider
	gracePeriod    time.Duration
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	registerChan   chan *Client
	deRegisterChan chan *Client
	unloadRoomChan chan unloadRoomRequest
	rosterReqChan  chan rosterRequest
	rooms          map[string]*Room
	stop           chan stopRequest
	// quit is closed when Run returns so late registry traffic from
	// tearing-down connections cannot block
	quit chan struct{}
}

func NewSyncServer(logger *log.Logger, db database.Repository, sp stats.StatsProvider, gracePeriod time.Duration) (*SyncServer, error) {
	ss := &SyncServer{
		log:            logger,
		db:             db,
		stats:          sp,
		gracePeriod:    gracePeriod,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		rosterReqChan:  make(chan rosterRequest),
		rooms:          make(map[string]*Room),
		stop:           make(chan stopRequest),
		quit:           make(chan struct{}),
	}

	sp.RegisterMetric(metricActiveConnections)
	sp.RegisterMetric(metricActiveRooms)
	sp.RegisterMetric(metricEventsAccepted)
	sp.RegisterMetric(metricEventsRejected)

	return ss, nil
}

func (cs *SyncServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoinRequest(joinMsg)
		case client := <-cs.registerChan:
			cs.log.Printf("adding connection %q from %q", client.id, client.user.Username)
			cs.addClient(client)
			cs.stats.Incr(metricActiveConnections)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %q from %q", client.id, client.user.Username)
			cs.removeClient(client)
			cs.stats.Decr(metricActiveConnections)
		case req := <-cs.unloadRoomChan:
			cs.handleUnloadRoom(req)
		case req := <-cs.rosterReqChan:
			if r, ok := cs.rooms[req.roomCode]; ok {
				r.rosterChan <- req.resp
			} else {
				req.resp <- nil
			}
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				cs.log.Printf("shutting down room %q", r.code)
				r.exit <- exitReq{}
				<-r.done
			}

			close(cs.quit)
			close(req.done)
			return
		}
	}
}

// handleJoinRequest routes a join to its room, hydrating the room from
// the repository if it is not loaded. An unknown code is the client's
// error; a failed hydration is ours.
func (cs *SyncServer) handleJoinRequest(joinMsg *ClientMessage) {
	if room, ok := cs.rooms[joinMsg.RoomCode]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on room %q", room.code)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	dbSession, err := cs.db.GetSessionByCode(joinMsg.RoomCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
		} else {
			cs.log.Println("GetSessionByCode:", err)
			joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
		}
		return
	}

	dbLists, err := cs.db.GetListsBySession(dbSession.Id)
	if err != nil {
		cs.log.Println("GetListsBySession:", err)
		joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
		return
	}

	room := newRoom(cs, dbSession, dbLists)
	cs.rooms[room.code] = room
	cs.stats.Incr(metricActiveRooms)
	room.joinChan <- joinMsg

	go room.start()
}

func (cs *SyncServer) handleUnloadRoom(req unloadRoomRequest) {
	r, ok := cs.rooms[req.roomCode]
	if ok {
		cs.log.Printf("unloading room %q", r.code)
		delete(cs.rooms, req.roomCode)
		cs.stats.Decr(metricActiveRooms)
		r.exit <- exitReq{deleted: req.deleted}
		<-r.done

		// a join routed onto the room's channel while it was exiting
		// must not be lost: re-run it, re-hydrating the room (or
		// answering RoomNotFound if the session was deleted)
	drain:
		for {
			select {
			case joinMsg := <-r.joinChan:
				cs.handleJoinRequest(joinMsg)
			default:
				break drain
			}
		}
	}

	if req.done != nil {
		close(req.done)
	}
}

func (cs *SyncServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *SyncServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

func (cs *SyncServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.quit:
	}
}

func (cs *SyncServer) DeregisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.quit:
	}
}

// UnloadRoom forces a loaded room out of memory, broadcasting a deletion
// notification first when deleted is set. A room that is not loaded is
// not an error.
func (cs *SyncServer) UnloadRoom(ctx context.Context, roomCode string, deleted bool) error {
	req := unloadRoomRequest{
		roomCode: roomCode,
		deleted:  deleted,
		done:     make(chan struct{}),
	}

	select {
	case cs.unloadRoomChan <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Participants reports the live roster of a loaded room; nil when the
// room is not loaded.
func (cs *SyncServer) Participants(ctx context.Context, roomCode string) ([]types.Participant, error) {
	req := rosterRequest{
		roomCode: roomCode,
		resp:     make(chan []types.Participant, 1),
	}

	select {
	case cs.rosterReqChan <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case roster := <-req.resp:
		return roster, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cs *SyncServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	req := stopRequest{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
