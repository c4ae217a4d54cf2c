package player

import (
	"arena-rooms/server/internal/entity"
	"arena-rooms/server/internal/net/proto"
)

// Conn is the substrate-owned connection a player talks through.
type Conn interface {
	ID() string
	Send(data []byte) error
}

// Player is the session-scoped state of one connection. It is only touched
// on the session loop.
type Player struct {
	conn     Conn
	username string
	roomID   uint64
	avatar   *entity.Avatar
}

// New wraps conn.
func New(conn Conn) *Player {
	return &Player{conn: conn}
}

// ID returns the connection id.
func (p *Player) ID() string {
	if p == nil || p.conn == nil {
		return ""
	}
	return p.conn.ID()
}

func (p *Player) Conn() Conn {
	return p.conn
}

// Username returns the chosen name or the default one.
func (p *Player) Username() string {
	if p.username == "" {
		return entity.DefaultUsername
	}
	return p.username
}

// SetUsername stores an already validated name.
func (p *Player) SetUsername(name string) {
	p.username = name
}

// RoomID returns the current room, zero when not in a room.
func (p *Player) RoomID() uint64 {
	return p.roomID
}

func (p *Player) InRoom() bool {
	return p.roomID != 0
}

// BindRoom records the room the player was added to.
func (p *Player) BindRoom(roomID uint64) {
	p.roomID = roomID
}

// ClearRoom drops the room reference together with the avatar reference, so
// a player outside a room never holds an avatar.
func (p *Player) ClearRoom() {
	p.roomID = 0
	p.avatar = nil
}

// Avatar returns the current in-room avatar, if any.
func (p *Player) Avatar() *entity.Avatar {
	return p.avatar
}

// BindAvatar records the avatar spawned for the player. It is ignored when
// the player is not in a room.
func (p *Player) BindAvatar(avatar *entity.Avatar) {
	if !p.InRoom() {
		return
	}
	p.avatar = avatar
}

// ClearAvatar drops the avatar reference.
func (p *Player) ClearAvatar() {
	p.avatar = nil
}

// Send encodes payload under op and writes it to the connection.
func (p *Player) Send(op proto.OpCode, payload any) error {
	data, err := proto.Encode(op, payload)
	if err != nil {
		return err
	}
	return p.SendRaw(data)
}

// SendRaw writes an already encoded frame.
func (p *Player) SendRaw(data []byte) error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Send(data)
}
