package node

import (
	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/transport"
	"ringkv/internal/wire"
)

// sender encodes protocol messages onto the node's transport. Delivery is
// best effort; failures are only logged.
type sender struct {
	self      addr.Address
	transport transport.Transport
	logger    *zap.Logger
}

func (s *sender) Send(to addr.Address, m wire.Message) {
	if err := s.transport.Send(s.self, to, wire.MustEncode(m)); err != nil {
		s.logger.Debug("send failed",
			zap.Stringer("to", to),
			zap.Stringer("kind", m.Kind()),
			zap.Error(err))
	}
}
