// ABOUTME: room is the per-board actor: one goroutine owning membership and fan-out.
// ABOUTME: Delivery is per-member buffered and non-blocking; slow consumers drop, never stall peers.
package hub

import (
	"sort"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/2389-research/huddle/core"
)

// eventBuffer is the per-subscriber channel capacity. A member that falls
// this far behind starts losing events and will resync via the stale path.
const eventBuffer = 4096

type room struct {
	boardID ulid.ULID
	msgCh   chan roomMsg
	done    chan struct{}
	log     *logrus.Entry
}

type roomMsg interface{ roomMsgSeal() }

type joinMsg struct {
	connID string
	id     Identity
	reply  chan joinReply
}

type joinReply struct {
	ch  chan core.Event
	gen uint64
}

type leaveMsg struct {
	connID   string
	gen      uint64
	matchGen bool
	reply    chan leaveReply
}

type leaveReply struct {
	left  bool
	empty bool
}

type publishMsg struct{ ev core.Event }

type tapMsg struct{ reply chan tapReply }

type tapReply struct {
	ch chan core.Event
	id uint64
}

type untapMsg struct{ id uint64 }

type statsMsg struct{ reply chan RoomStat }

type stopMsg struct{ done chan struct{} }

func (joinMsg) roomMsgSeal()    {}
func (leaveMsg) roomMsgSeal()   {}
func (publishMsg) roomMsgSeal() {}
func (tapMsg) roomMsgSeal()     {}
func (untapMsg) roomMsgSeal()   {}
func (statsMsg) roomMsgSeal()   {}
func (stopMsg) roomMsgSeal()    {}

// member is one connection's seat in the room.
type member struct {
	id  Identity
	ch  chan core.Event
	gen uint64
}

// spawnRoom starts the room goroutine for one board.
func spawnRoom(boardID ulid.ULID, log *logrus.Logger) *room {
	r := &room{
		boardID: boardID,
		msgCh:   make(chan roomMsg, 64),
		done:    make(chan struct{}),
		log:     log.WithField("board_id", boardID.String()),
	}
	go r.run()
	return r
}

// join seats a connection, replacing any previous seat it held. Callers
// (the hub, under its lock) guarantee the room is live.
func (r *room) join(connID string, id Identity) (chan core.Event, uint64) {
	reply := make(chan joinReply, 1)
	r.msgCh <- joinMsg{connID: connID, id: id, reply: reply}
	rep := <-reply
	return rep.ch, rep.gen
}

// leave vacates a connection's seat. With matchGen set, only the named
// generation is removed, so a replaced subscription's late cleanup cannot
// evict its successor.
func (r *room) leave(connID string, gen uint64, matchGen bool) (left, empty bool) {
	reply := make(chan leaveReply, 1)
	r.msgCh <- leaveMsg{connID: connID, gen: gen, matchGen: matchGen, reply: reply}
	rep := <-reply
	return rep.left, rep.empty
}

// publish hands an event to the room loop. Dropped silently if the room has
// already been reaped; there was nobody to tell.
func (r *room) publish(ev core.Event) {
	select {
	case r.msgCh <- publishMsg{ev: ev}:
	case <-r.done:
	}
}

// tap attaches an observer channel. Caller holds the hub lock.
func (r *room) tap() (chan core.Event, uint64) {
	reply := make(chan tapReply, 1)
	r.msgCh <- tapMsg{reply: reply}
	rep := <-reply
	return rep.ch, rep.id
}

// untap detaches an observer. Safe after the room is reaped.
func (r *room) untap(id uint64) {
	select {
	case r.msgCh <- untapMsg{id: id}:
	case <-r.done:
	}
}

// stats snapshots the room. Safe after the room is reaped.
func (r *room) stats() RoomStat {
	reply := make(chan RoomStat, 1)
	select {
	case r.msgCh <- statsMsg{reply: reply}:
	case <-r.done:
		return RoomStat{BoardID: r.boardID}
	}
	select {
	case s := <-reply:
		return s
	case <-r.done:
		return RoomStat{BoardID: r.boardID}
	}
}

// stop terminates the loop, closing every member and tap channel. Caller
// holds the hub lock.
func (r *room) stop() {
	done := make(chan struct{})
	r.msgCh <- stopMsg{done: done}
	<-done
}

// run is the room actor loop. All membership state lives here, touched by
// exactly one goroutine.
func (r *room) run() {
	members := make(map[string]*member)
	userConns := make(map[string]int)
	taps := make(map[uint64]chan core.Event)
	var nextGen, nextTap, dropped uint64

	deliver := func(ev core.Event) {
		for connID, m := range members {
			if connID == ev.OriginConn {
				continue
			}
			select {
			case m.ch <- ev:
			default:
				dropped++
				r.log.WithFields(logrus.Fields{
					"conn_id": connID,
					"event":   ev.Payload.EventPayloadType(),
				}).Warn("subscriber buffer full, dropping event")
			}
		}
		for id, ch := range taps {
			select {
			case ch <- ev:
			default:
				r.log.WithField("tap_id", id).Warn("tap buffer full, dropping event")
			}
		}
	}

	for msg := range r.msgCh {
		switch m := msg.(type) {
		case joinMsg:
			// Replacing a seat held by the same user is a silent reconnect;
			// the user's refcount never moves, so no announcements fire.
			sameUser := false
			if prev, ok := members[m.connID]; ok {
				close(prev.ch)
				sameUser = prev.id.UserID == m.id.UserID
				if !sameUser {
					userConns[prev.id.UserID]--
					if userConns[prev.id.UserID] <= 0 {
						delete(userConns, prev.id.UserID)
						deliver(core.NewEvent(r.boardID, prev.id.UserID, m.connID, core.UserDisconnectedPayload{
							UserID:   prev.id.UserID,
							UserName: prev.id.Name,
						}))
					}
				}
			}
			nextGen++
			seat := &member{
				id:  m.id,
				ch:  make(chan core.Event, eventBuffer),
				gen: nextGen,
			}
			members[m.connID] = seat
			if !sameUser {
				userConns[m.id.UserID]++
				if userConns[m.id.UserID] == 1 {
					deliver(core.NewEvent(r.boardID, m.id.UserID, m.connID, core.UserConnectedPayload{
						UserID:   m.id.UserID,
						UserName: m.id.Name,
					}))
				}
			}
			m.reply <- joinReply{ch: seat.ch, gen: seat.gen}

		case leaveMsg:
			seat, ok := members[m.connID]
			if !ok || (m.matchGen && seat.gen != m.gen) {
				m.reply <- leaveReply{left: false, empty: len(members) == 0}
				continue
			}
			delete(members, m.connID)
			close(seat.ch)
			userConns[seat.id.UserID]--
			if userConns[seat.id.UserID] <= 0 {
				delete(userConns, seat.id.UserID)
				deliver(core.NewEvent(r.boardID, seat.id.UserID, m.connID, core.UserDisconnectedPayload{
					UserID:   seat.id.UserID,
					UserName: seat.id.Name,
				}))
			}
			m.reply <- leaveReply{left: true, empty: len(members) == 0}

		case publishMsg:
			deliver(m.ev)

		case tapMsg:
			nextTap++
			ch := make(chan core.Event, eventBuffer)
			taps[nextTap] = ch
			m.reply <- tapReply{ch: ch, id: nextTap}

		case untapMsg:
			if ch, ok := taps[m.id]; ok {
				delete(taps, m.id)
				close(ch)
			}

		case statsMsg:
			users := make([]string, 0, len(userConns))
			for u := range userConns {
				users = append(users, u)
			}
			sort.Strings(users)
			m.reply <- RoomStat{
				BoardID: r.boardID,
				Members: len(members),
				Users:   users,
				Dropped: dropped,
			}

		case stopMsg:
			for _, seat := range members {
				close(seat.ch)
			}
			for _, ch := range taps {
				close(ch)
			}
			close(r.done)
			close(m.done)
			return
		}
	}
}
