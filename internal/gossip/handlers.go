package gossip

import (
	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/wire"
)

// Handle processes one membership message received from `from`. It returns
// false for messages that are not membership messages.
func (m *Membership) Handle(from addr.Address, msg wire.Message) bool {
	switch v := msg.(type) {
	case wire.JoinRequest:
		m.HandleJoinRequest(from, v)
	case wire.JoinReply:
		m.HandleJoinReply(from, v)
	case wire.Heartbeat:
		m.HandleHeartbeat(from, v)
	default:
		return false
	}
	return true
}

// HandleJoinRequest admits the requester and replies with the full table.
func (m *Membership) HandleJoinRequest(from addr.Address, req wire.JoinRequest) {
	if m.state != InGroup {
		m.logger.Debug("ignoring join request while not in group",
			zap.Stringer("from", from), zap.Stringer("state", m.state))
		return
	}

	// A join is always fresh, even for a recently evicted address.
	delete(m.tombstones, req.Address)
	m.merge(req.Address, req.Heartbeat, req.Address)

	snapshot := m.Snapshot()
	entries := make([]wire.Entry, 0, len(snapshot))
	for _, e := range snapshot {
		entries = append(entries, wire.Entry{
			Address:   e.Address,
			Heartbeat: e.Heartbeat,
			Timestamp: int64(e.LastUpdate),
		})
	}
	m.sender.Send(req.Address, wire.JoinReply{Entries: entries})
}

// HandleJoinReply completes a pending join and merges the introducer's table.
func (m *Membership) HandleJoinReply(from addr.Address, rep wire.JoinReply) {
	switch m.state {
	case Joining:
		m.state = InGroup
		m.logger.Info("joined group", zap.Stringer("via", from), zap.Int("entries", len(rep.Entries)))
	case InGroup:
	default:
		return
	}

	for _, e := range rep.Entries {
		m.merge(e.Address, e.Heartbeat, from)
	}
	m.reportSize()
}

// HandleHeartbeat merges one heartbeat observation.
func (m *Membership) HandleHeartbeat(from addr.Address, hb wire.Heartbeat) {
	if m.state != InGroup {
		return
	}
	m.merge(hb.Address, hb.Heartbeat, from)
}
