package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"ringkv/internal/addr"
	"ringkv/internal/queue"
	"ringkv/internal/telemetry"
)

const (
	serviceName   = "ringkv.Transport"
	deliverMethod = "/" + serviceName + "/Deliver"

	defaultCallTimeout = 500 * time.Millisecond
	defaultOutbound    = 256
)

// AddressBook resolves node addresses to gRPC dial targets.
type AddressBook interface {
	Lookup(a addr.Address) (target string, ok bool)
}

// StaticBook is a fixed AddressBook.
type StaticBook map[addr.Address]string

// Lookup implements AddressBook.
func (b StaticBook) Lookup(a addr.Address) (string, bool) {
	target, ok := b[a]
	return target, ok
}

// deliverServer is the handler interface of the Transport service.
type deliverServer interface {
	Deliver(ctx context.Context, in *envelope) (*ack, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*deliverServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ringkv/transport",
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(deliverServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: deliverMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(deliverServer).Deliver(ctx, req.(*envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCOption configures a GRPC transport.
type GRPCOption func(*GRPC)

// WithDialOptions appends options used when dialing peers.
func WithDialOptions(opts ...grpc.DialOption) GRPCOption {
	return func(g *GRPC) { g.dialOpts = append(g.dialOpts, opts...) }
}

// WithCallTimeout bounds each Deliver call.
func WithCallTimeout(d time.Duration) GRPCOption {
	return func(g *GRPC) { g.callTimeout = d }
}

// WithOutboundBuffer sets how many packets may wait for a single peer before
// Send starts dropping packets to it.
func WithOutboundBuffer(n int) GRPCOption {
	return func(g *GRPC) { g.outboundSize = n }
}

// GRPC is a Transport for a single local node that delivers packets to peers
// through unary gRPC calls. Send never blocks: every peer has its own queue
// and sender goroutine, so a slow or unreachable peer only delays its own
// packets. Packets are dropped when a peer's queue is full.
type GRPC struct {
	self   addr.Address
	book   AddressBook
	inbox  *queue.Queue
	server *grpc.Server
	logger *zap.Logger

	dialOpts     []grpc.DialOption
	callTimeout  time.Duration
	outboundSize int

	mu     sync.Mutex
	peers  map[addr.Address]*peer
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// peer is the outbound side of one destination. conn and target are owned by
// the peer's sender goroutine.
type peer struct {
	addr   addr.Address
	queue  chan Packet
	target string
	conn   *grpc.ClientConn
}

// NewGRPC creates the transport for self.
func NewGRPC(self addr.Address, book AddressBook, logger *zap.Logger, opts ...GRPCOption) *GRPC {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &GRPC{
		self:         self,
		book:         book,
		inbox:        queue.New(),
		logger:       logger,
		callTimeout:  defaultCallTimeout,
		outboundSize: defaultOutbound,
		peers:        make(map[addr.Address]*peer),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())

	g.server = grpc.NewServer(grpc.ForceServerCodec(envelopeCodec{}))
	g.server.RegisterService(&serviceDesc, g)
	return g
}

// Serve accepts peer connections on lis until Close is called.
func (g *GRPC) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Close stops the server, every sender goroutine and every peer connection.
func (g *GRPC) Close() {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		g.mu.Unlock()

		g.cancel()
		g.server.Stop()
		g.wg.Wait()
	})
}

// Send implements Transport.
func (g *GRPC) Send(from, to addr.Address, data []byte) error {
	if from != g.self {
		return fmt.Errorf("send from %s on transport owned by %s", from, g.self)
	}

	p := Packet{From: from, To: to, Data: append([]byte(nil), data...)}
	if to == g.self {
		if g.ctx.Err() != nil {
			return ErrClosed
		}
		g.inbox.Push(frame(from, p.Data))
		telemetry.MessagesSent.WithLabelValues(kindLabel(data)).Inc()
		return nil
	}

	pr, err := g.peer(to)
	if err != nil {
		return err
	}
	select {
	case pr.queue <- p:
		telemetry.MessagesSent.WithLabelValues(kindLabel(data)).Inc()
		return nil
	default:
		telemetry.MessagesDropped.WithLabelValues("backpressure").Inc()
		return fmt.Errorf("send %s -> %s: outbound buffer full", from, to)
	}
}

// Receive implements Transport.
func (g *GRPC) Receive(at addr.Address) []Packet {
	if at != g.self {
		return nil
	}
	bufs := g.inbox.Drain()
	packets := make([]Packet, 0, len(bufs))
	for _, buf := range bufs {
		p, err := unframe(at, buf)
		if err != nil {
			g.logger.Warn("discarding queued buffer", zap.Error(err))
			continue
		}
		packets = append(packets, p)
	}
	return packets
}

// Deliver is the server side of the Transport service.
func (g *GRPC) Deliver(_ context.Context, in *envelope) (*ack, error) {
	if len(in.Data) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty packet")
	}
	g.inbox.Push(frame(in.From, in.Data))
	return &ack{}, nil
}

// peer returns the outbound queue for a, starting its sender on first use.
func (g *GRPC) peer(a addr.Address) (*peer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, ErrClosed
	}
	if pr, exists := g.peers[a]; exists {
		return pr, nil
	}
	pr := &peer{addr: a, queue: make(chan Packet, g.outboundSize)}
	g.peers[a] = pr
	g.wg.Add(1)
	go g.sendLoop(pr)
	return pr, nil
}

func (g *GRPC) sendLoop(pr *peer) {
	defer g.wg.Done()
	defer func() {
		if pr.conn == nil {
			return
		}
		if err := pr.conn.Close(); err != nil {
			g.logger.Debug("closing peer connection", zap.Stringer("peer", pr.addr), zap.Error(err))
		}
	}()

	for {
		select {
		case <-g.ctx.Done():
			return
		case p := <-pr.queue:
			g.deliver(pr, p)
		}
	}
}

func (g *GRPC) deliver(pr *peer, p Packet) {
	conn, err := g.conn(pr)
	if err != nil {
		telemetry.MessagesDropped.WithLabelValues("unreachable").Inc()
		g.logger.Debug("peer not dialable", zap.Stringer("to", p.To), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(g.ctx, g.callTimeout)
	defer cancel()

	err = conn.Invoke(ctx, deliverMethod, &envelope{From: p.From, Data: p.Data}, &ack{})
	if err != nil {
		telemetry.MessagesDropped.WithLabelValues("unreachable").Inc()
		g.logger.Debug("deliver failed",
			zap.Stringer("to", p.To),
			zap.Stringer("code", status.Code(err)),
			zap.Error(err))
	}
}

// conn returns the connection to pr, dialing on first use and again whenever
// the address book resolves pr to a different target.
func (g *GRPC) conn(pr *peer) (*grpc.ClientConn, error) {
	target, ok := g.book.Lookup(pr.addr)
	if !ok {
		return nil, fmt.Errorf("no dial target for %s: %w", pr.addr, ErrUnreachable)
	}
	if pr.conn != nil && pr.target == target {
		return pr.conn, nil
	}
	if pr.conn != nil {
		g.logger.Info("peer endpoint changed",
			zap.Stringer("peer", pr.addr),
			zap.String("previous", pr.target),
			zap.String("current", target))
		if err := pr.conn.Close(); err != nil {
			g.logger.Debug("closing peer connection", zap.Stringer("peer", pr.addr), zap.Error(err))
		}
		pr.conn, pr.target = nil, ""
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(envelopeCodec{})),
	}, g.dialOpts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}
	pr.conn, pr.target = conn, target
	return conn, nil
}
