package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studyspot/roomsync/internal/stats"
	"github.com/studyspot/roomsync/internal/types"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is one websocket connection for one user. A connection is a
// member of at most one room at a time.
type Client struct {
	id         string
	conn       *websocket.Conn
	syncServer *SyncServer
	log        *log.Logger
	stats      stats.StatsProvider
	user       types.User
	send       chan *ServerMessage
	room       *Room
	roomLock   sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, ss *SyncServer, l *log.Logger, sp stats.StatsProvider) *Client {
	return &Client{
		id:         shortid.MustGenerate(),
		conn:       conn,
		syncServer: ss,
		log:        l,
		stats:      sp,
		user:       user,
		send:       make(chan *ServerMessage, 256),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	switch msg.Op {
	case OpJoin:
		c.joinRoom(msg)
	case OpLeave:
		c.leaveRoom(msg)
	case OpAddTask, OpToggleTask, OpRemoveTask, OpAddList, OpDeleteList:
		r := c.currentRoom()
		if r == nil {
			c.queueMessage(ErrRoomNotFound(msg.Id))
			return
		}

		select {
		case r.eventChan <- msg:
		default:
			c.queueMessage(ErrServiceUnavailable(msg.Id))
			c.log.Printf("eventChan full for room %q", r.code)
		}
	case OpParticipantsUpdate:
		// roster updates are generated by the server, never accepted
		// from a client
		c.queueMessage(ErrForbidden(msg.Id))
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send queue full for connection %q", c.id)
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.leaveCurrentRoom()
	c.syncServer.DeregisterClient(c)
	c.stopClient()
}

func (c *Client) leaveCurrentRoom() {
	r := c.currentRoom()
	if r == nil {
		return
	}

	select {
	case r.leaveChan <- &ClientMessage{
		Op:     OpLeave,
		UserId: c.user.Id,
		client: c,
	}:
	default:
		c.log.Printf("leaveChan full for room %q", r.code)
	}
}

func (c *Client) joinRoom(msg *ClientMessage) {
	// a connection holds one room at a time; joining another room
	// implicitly leaves the current one
	if r := c.currentRoom(); r != nil && r.code != msg.RoomCode {
		c.leaveCurrentRoom()
	}

	select {
	case c.syncServer.joinChan <- msg:
	default:
		c.log.Printf("joinChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) leaveRoom(msg *ClientMessage) {
	r := c.currentRoom()
	if r == nil {
		c.queueMessage(ErrRoomNotFound(msg.Id))
		return
	}

	select {
	case r.leaveChan <- msg:
	default:
		c.log.Printf("leaveChan full for room %q", r.code)
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

func (c *Client) setRoom(r *Room) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()
	c.room = r
}

func (c *Client) clearRoom(code string) {
	c.roomLock.Lock()
	defer c.roomLock.Unlock()

	if c.room != nil && c.room.code == code {
		c.room = nil
	}
}

func (c *Client) currentRoom() *Room {
	c.roomLock.RLock()
	defer c.roomLock.RUnlock()
	return c.room
}
