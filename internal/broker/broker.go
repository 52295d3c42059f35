// Package broker owns the websocket connection registry: registering
// connections, fanning out broadcast batches, delivering personal messages,
// and evicting connections that have gone quiet.
package broker

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/punchcam/backend/pkg/metrics"
)

type Msg interface{ isBrokerMsg() }

// Register adds a connection. Hello, when set, is queued before anything
// else so the client's first read is its welcome. Re-registering an id
// closes the previous outbox first.
type Register struct {
	ConnID     string
	PlayerID   string
	PlayerName string
	Outbox     chan []byte
	Hello      []byte
}

func (Register) isBrokerMsg() {}

type Unregister struct{ ConnID string }

func (Unregister) isBrokerMsg() {}

// Touch marks inbound activity on a connection for liveness accounting.
type Touch struct{ ConnID string }

func (Touch) isBrokerMsg() {}

// Send queues one payload for a single connection.
type Send struct {
	ConnID  string
	Payload []byte
}

func (Send) isBrokerMsg() {}

// Publish queues a batch for every connection, in batch order.
type Publish struct{ Batch [][]byte }

func (Publish) isBrokerMsg() {}

type GetStats struct{ Reply chan Stats }

func (GetStats) isBrokerMsg() {}

type Shutdown struct{}

func (Shutdown) isBrokerMsg() {}

// ConnInfo is a point-in-time description of one connection.
type ConnInfo struct {
	ConnID      string    `json:"connection_id"`
	PlayerID    string    `json:"player_id,omitempty"`
	PlayerName  string    `json:"player_name,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

type Stats struct {
	Connections int        `json:"connections"`
	Conns       []ConnInfo `json:"clients"`
}

type conn struct {
	outbox      chan []byte
	playerID    string
	playerName  string
	connectedAt time.Time
	lastSeen    time.Time
}

type Config struct {
	// LivenessTimeout evicts a connection with no inbound traffic for this
	// long. Sends do not count; only the client talking keeps it alive.
	LivenessTimeout time.Duration
	SweepInterval   time.Duration
}

const (
	defaultLivenessTimeout = 30 * time.Second
	defaultSweepInterval   = 10 * time.Second
)

type Broker struct {
	inbox  chan Msg
	conns  map[string]*conn
	cfg    Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, cfg Config, log *zap.Logger) *Broker {
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = defaultLivenessTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	ctx, cancel := context.WithCancel(parent)
	b := &Broker{
		inbox:  make(chan Msg, 64),
		conns:  make(map[string]*conn),
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go b.loop()
	return b
}

func (b *Broker) Inbox() chan<- Msg { return b.inbox }

// Publish satisfies the session's sink: fan a batch out to every client.
func (b *Broker) Publish(batch [][]byte) {
	select {
	case b.inbox <- Publish{Batch: batch}:
	case <-b.ctx.Done():
	}
}

func (b *Broker) loop() {
	sweep := time.NewTicker(b.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-b.ctx.Done():
			b.shutdown()
			return

		case <-sweep.C:
			b.evictIdle(time.Now())

		case m := <-b.inbox:
			switch msg := m.(type) {
			case Register:
				b.register(msg)

			case Unregister:
				b.drop(msg.ConnID)

			case Touch:
				if c, ok := b.conns[msg.ConnID]; ok {
					c.lastSeen = time.Now()
				}

			case Send:
				c, ok := b.conns[msg.ConnID]
				if !ok {
					break
				}
				select {
				case c.outbox <- msg.Payload:
				default:
					b.dropSlow(msg.ConnID)
				}

			case Publish:
				b.fanout(msg.Batch)

			case GetStats:
				msg.Reply <- b.stats()

			case Shutdown:
				b.shutdown()
				return
			}
		}
	}
}

func (b *Broker) register(msg Register) {
	if old, ok := b.conns[msg.ConnID]; ok {
		close(old.outbox)
	}
	now := time.Now()
	c := &conn{
		outbox:      msg.Outbox,
		playerID:    msg.PlayerID,
		playerName:  msg.PlayerName,
		connectedAt: now,
		lastSeen:    now,
	}
	if msg.Hello != nil {
		c.outbox <- msg.Hello
	}
	b.conns[msg.ConnID] = c
	metrics.UpdateConnectionCount(len(b.conns))
	b.log.Info("connection registered",
		zap.String("conn", msg.ConnID),
		zap.String("player", msg.PlayerID),
		zap.Int("total", len(b.conns)))
}

func (b *Broker) drop(id string) {
	c, ok := b.conns[id]
	if !ok {
		return
	}
	close(c.outbox)
	delete(b.conns, id)
	metrics.UpdateConnectionCount(len(b.conns))
	b.log.Info("connection closed",
		zap.String("conn", id),
		zap.String("player", c.playerID),
		zap.Int("total", len(b.conns)))
}

func (b *Broker) dropSlow(id string) {
	c, ok := b.conns[id]
	if !ok {
		return
	}
	close(c.outbox)
	delete(b.conns, id)
	metrics.RecordBroadcastDropped()
	metrics.UpdateConnectionCount(len(b.conns))
	b.log.Warn("dropping connection with full outbox", zap.String("conn", id))
}

// fanout pushes the batch to every connection in order. A connection that
// cannot take the whole batch is dropped rather than left with a partial,
// stale view.
func (b *Broker) fanout(batch [][]byte) {
	for id, c := range b.conns {
		delivered := true
		for _, payload := range batch {
			select {
			case c.outbox <- payload:
			default:
				delivered = false
			}
			if !delivered {
				break
			}
		}
		if !delivered {
			b.dropSlow(id)
		}
	}
}

func (b *Broker) evictIdle(now time.Time) {
	for id, c := range b.conns {
		if now.Sub(c.lastSeen) <= b.cfg.LivenessTimeout {
			continue
		}
		close(c.outbox)
		delete(b.conns, id)
		metrics.RecordEviction("idle")
		metrics.UpdateConnectionCount(len(b.conns))
		b.log.Warn("evicting idle connection",
			zap.String("conn", id),
			zap.String("player", c.playerID),
			zap.Duration("idle", now.Sub(c.lastSeen)))
	}
}

func (b *Broker) stats() Stats {
	s := Stats{
		Connections: len(b.conns),
		Conns:       make([]ConnInfo, 0, len(b.conns)),
	}
	for id, c := range b.conns {
		s.Conns = append(s.Conns, ConnInfo{
			ConnID:      id,
			PlayerID:    c.playerID,
			PlayerName:  c.playerName,
			ConnectedAt: c.connectedAt,
			LastSeen:    c.lastSeen,
		})
	}
	slices.SortFunc(s.Conns, func(a, b ConnInfo) int {
		return strings.Compare(a.ConnID, b.ConnID)
	})
	return s
}

func (b *Broker) shutdown() {
	for id, c := range b.conns {
		close(c.outbox)
		delete(b.conns, id)
	}
	metrics.UpdateConnectionCount(0)
	b.cancel()
}
