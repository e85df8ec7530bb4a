package gossip

import (
	"math/rand"
	"slices"

	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/audit"
	"ringkv/internal/clock"
	"ringkv/internal/telemetry"
	"ringkv/internal/wire"
)

// State is the lifecycle state of a member.
type State int

const (
	Uninitialized State = iota
	Joining
	InGroup
	Failed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Joining:
		return "JOINING"
	case InGroup:
		return "IN_GROUP"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Mode selects how heartbeats spread.
type Mode int

const (
	// Direct sends the local heartbeat to every known member.
	Direct Mode = iota
	// Gossip relays every accepted update to a random subset of members.
	Gossip
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	if m == Gossip {
		return "gossip"
	}
	return "direct"
}

// ParseMode converts a configuration value to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "", "direct":
		return Direct, true
	case "gossip":
		return Gossip, true
	default:
		return Direct, false
	}
}

// Entry is one row of the membership table.
type Entry struct {
	Address    addr.Address
	Heartbeat  int64
	LastUpdate clock.Tick
}

// Config holds the membership parameters. Durations are in ticks.
type Config struct {
	Self       addr.Address
	Introducer addr.Address
	TFail      int64
	TRemove    int64
	JoinRetry  int64
	Mode       Mode
	Fanout     int
	// Rand drives gossip relay choices. Nil seeds a source from Self.
	Rand *rand.Rand
}

type tombstone struct {
	heartbeat int64
	expires   clock.Tick
}

// Membership keeps one node's view of the live members of the group. It is
// driven by its owner: Handle for each inbound membership message, then
// Housekeep once per tick. It is not safe for concurrent use.
type Membership struct {
	cfg    Config
	clock  clock.Clock
	sender wire.Sender
	sink   audit.Sink
	logger *zap.Logger
	rng    *rand.Rand

	state      State
	entries    map[addr.Address]*Entry
	tombstones map[addr.Address]tombstone
	lastBeat   clock.Tick
	lastJoin   clock.Tick
}

// New creates a membership manager for cfg.Self. Nothing is sent until Start.
func New(cfg Config, clk clock.Clock, sender wire.Sender, sink audit.Sink, logger *zap.Logger) *Membership {
	if cfg.TFail <= 0 {
		cfg.TFail = 5
	}
	if cfg.TRemove <= 0 {
		cfg.TRemove = 20
	}
	if cfg.JoinRetry <= 0 {
		cfg.JoinRetry = 10
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = audit.Discard
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(cfg.Self.ID)<<16 | int64(cfg.Self.Port)))
	}

	return &Membership{
		cfg:        cfg,
		clock:      clk,
		sender:     sender,
		sink:       sink,
		logger:     logger,
		rng:        rng,
		entries:    make(map[addr.Address]*Entry),
		tombstones: make(map[addr.Address]tombstone),
	}
}

// Start moves an uninitialized member to Joining and asks the introducer to
// admit it. The introducer itself is in the group immediately.
func (m *Membership) Start() {
	if m.state != Uninitialized {
		return
	}

	now := m.clock.Now()
	m.entries[m.cfg.Self] = &Entry{Address: m.cfg.Self, LastUpdate: now}
	m.lastBeat = now
	m.state = Joining

	if m.cfg.Self == m.cfg.Introducer {
		m.state = InGroup
		m.logger.Info("starting up group")
		m.reportSize()
		return
	}

	m.sendJoinRequest(now)
}

// Fail stops all processing. It cannot be undone.
func (m *Membership) Fail() {
	if m.state == Failed {
		return
	}
	m.state = Failed
	m.logger.Info("node failed")
}

// State returns the lifecycle state.
func (m *Membership) State() State {
	return m.state
}

// Heartbeat returns the local heartbeat counter.
func (m *Membership) Heartbeat() int64 {
	if self, ok := m.entries[m.cfg.Self]; ok {
		return self.Heartbeat
	}
	return 0
}

// Len returns the number of table entries, self included.
func (m *Membership) Len() int {
	return len(m.entries)
}

// Snapshot returns a copy of the table ordered by address.
func (m *Membership) Snapshot() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return addr.Compare(a.Address, b.Address) })
	return out
}

// Addresses returns the member addresses ordered by address.
func (m *Membership) Addresses() []addr.Address {
	out := make([]addr.Address, 0, len(m.entries))
	for a := range m.entries {
		out = append(out, a)
	}
	slices.SortFunc(out, addr.Compare)
	return out
}

// Contains reports whether a is in the table.
func (m *Membership) Contains(a addr.Address) bool {
	_, ok := m.entries[a]
	return ok
}

// Housekeep runs the periodic part of the protocol: join retries while
// joining; failure detection and then dissemination while in the group.
func (m *Membership) Housekeep() {
	now := m.clock.Now()

	switch m.state {
	case Joining:
		if m.lastJoin.Since(now) >= m.cfg.JoinRetry {
			m.logger.Debug("retrying join", zap.Stringer("introducer", m.cfg.Introducer))
			m.sendJoinRequest(now)
		}
		return
	case InGroup:
	default:
		return
	}

	m.detectFailures(now)
	m.expireTombstones(now)

	if m.lastBeat.Since(now) >= m.cfg.TFail {
		m.lastBeat = now
		m.disseminate(now)
	}
	m.reportSize()
}

func (m *Membership) detectFailures(now clock.Tick) {
	for _, a := range m.Addresses() {
		if a == m.cfg.Self {
			continue
		}
		e := m.entries[a]
		if e.LastUpdate.Since(now) <= m.cfg.TRemove {
			continue
		}

		delete(m.entries, a)
		m.tombstones[a] = tombstone{
			heartbeat: e.Heartbeat,
			expires:   now + clock.Tick(2*m.cfg.TRemove),
		}

		m.logger.Info("removing member",
			zap.Stringer("member", a),
			zap.Int64("heartbeat", e.Heartbeat),
			zap.Int64("silent_ticks", e.LastUpdate.Since(now)))
		telemetry.MembershipEvents.WithLabelValues("removed").Inc()
		m.sink.Record(audit.Event{Kind: audit.NodeRemoved, At: now, Node: m.cfg.Self, Subject: a})
	}
}

func (m *Membership) expireTombstones(now clock.Tick) {
	for a, ts := range m.tombstones {
		if now >= ts.expires {
			delete(m.tombstones, a)
		}
	}
}

func (m *Membership) disseminate(now clock.Tick) {
	self := m.entries[m.cfg.Self]
	self.Heartbeat++
	self.LastUpdate = now

	if m.cfg.Mode == Gossip {
		m.relay(m.cfg.Self, self.Heartbeat, m.cfg.Self)
		return
	}

	msg := wire.Heartbeat{Address: m.cfg.Self, Heartbeat: self.Heartbeat}
	for _, a := range m.Addresses() {
		if a != m.cfg.Self {
			m.sender.Send(a, msg)
		}
	}
}

// relay forwards news about subject to each member with probability
// fanout/|table|, skipping self, the subject and the member it came from.
func (m *Membership) relay(subject addr.Address, heartbeat int64, from addr.Address) {
	p := float64(m.cfg.Fanout) / float64(len(m.entries))
	msg := wire.Heartbeat{Address: subject, Heartbeat: heartbeat}

	for _, a := range m.Addresses() {
		if a == m.cfg.Self || a == subject || a == from {
			continue
		}
		if p >= 1 || m.rng.Float64() < p {
			m.sender.Send(a, msg)
		}
	}
}

// merge applies the update rule to one (address, heartbeat) observation
// received from `from`. It reports whether the table changed.
func (m *Membership) merge(a addr.Address, heartbeat int64, from addr.Address) bool {
	if a == m.cfg.Self {
		return false
	}

	now := m.clock.Now()

	if ts, buried := m.tombstones[a]; buried {
		if heartbeat <= ts.heartbeat {
			return false
		}
		delete(m.tombstones, a)
	}

	if e, exists := m.entries[a]; exists {
		if heartbeat <= e.Heartbeat {
			return false
		}
		e.Heartbeat = heartbeat
		e.LastUpdate = now
	} else {
		m.entries[a] = &Entry{Address: a, Heartbeat: heartbeat, LastUpdate: now}

		m.logger.Info("adding member", zap.Stringer("member", a), zap.Int64("heartbeat", heartbeat))
		telemetry.MembershipEvents.WithLabelValues("added").Inc()
		m.sink.Record(audit.Event{Kind: audit.NodeAdded, At: now, Node: m.cfg.Self, Subject: a})
	}

	if m.cfg.Mode == Gossip {
		m.relay(a, heartbeat, from)
	}
	return true
}

func (m *Membership) sendJoinRequest(now clock.Tick) {
	m.lastJoin = now
	m.logger.Debug("sending join request", zap.Stringer("introducer", m.cfg.Introducer))
	m.sender.Send(m.cfg.Introducer, wire.JoinRequest{Address: m.cfg.Self, Heartbeat: m.Heartbeat()})
}

func (m *Membership) reportSize() {
	telemetry.MembershipSize.WithLabelValues(m.cfg.Self.String()).Set(float64(len(m.entries)))
}
