package evnet

import "sync"

// SocketController extends EventController with registries for TCP servers,
// TCP clients/channels, and UDP receivers (spec.md §4.6), the Go analogue of
// the source's SocketController arenas (socket_controller.hpp's TcpServerItem
// / TcpClientItem / TcpChannelItem / UdpReceiverItem maps, there keyed by
// Socket::Handle).
//
// The source's wait() merges a select()-style readiness poll with the event
// queue inside one call. Go's runtime netpoller already does that merge for
// us: each registered socket owns a dedicated goroutine blocked in an
// ordinary net.Conn.Read/Listener.Accept/PacketConn.ReadFrom call, and that
// goroutine turns "the blocking call returned" into a Push on this
// controller's embedded EventController the moment it happens. So Wait itself
// needs no readiness polling of its own — it only has to dequeue, which the
// embedded EventController already does. The override exists so
// *SocketController satisfies Controller distinctly from a bare
// *EventController. closeAll, below, implements socketControllerTeardown
// (eventloop.go): EventLoop.Run calls it once the loop exits, closing every
// item still registered if the owning Thread's loop exits without the
// caller explicitly closing them first.
type SocketController struct {
	*EventController

	loop *EventLoop

	mu          sync.Mutex
	tcpServers  map[ChannelID]*tcpServerItem
	tcpClients  map[ChannelID]*tcpClientItem
	tcpChannels map[ChannelID]*tcpChannelItem
	udpReceivers map[ChannelID]*udpReceiverItem

	// MaxSockets caps the number of simultaneously registered sockets, the
	// Go analogue of SocketSelector::MaxSockets. Zero means unlimited; Go's
	// netpoller has no comparable per-process fd_set limitation, so this
	// exists only for callers that want a soft admission-control cap (spec.md
	// §4.11's worker overflow refusal reuses it).
	MaxSockets int
}

// NewSocketController constructs a SocketController bound to loop, used for
// posting events from the per-socket reader/writer goroutines it spawns.
func NewSocketController(loop *EventLoop) *SocketController {
	return &SocketController{
		EventController: NewEventController(),
		loop:            loop,
		tcpServers:      make(map[ChannelID]*tcpServerItem),
		tcpClients:      make(map[ChannelID]*tcpClientItem),
		tcpChannels:     make(map[ChannelID]*tcpChannelItem),
		udpReceivers:    make(map[ChannelID]*udpReceiverItem),
	}
}

// Wait delegates to the embedded EventController; see the type doc comment
// for why no separate readiness merge is needed in the Go design.
func (sc *SocketController) Wait(timeoutMS uint32, hasTimeout bool) (WaitResult, *Event) {
	return sc.EventController.Wait(timeoutMS, hasTimeout)
}

// SocketCount reports the number of currently registered sockets across all
// four arenas.
func (sc *SocketController) SocketCount() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.tcpServers) + len(sc.tcpClients) + len(sc.tcpChannels) + len(sc.udpReceivers)
}

// IsFull reports whether SocketCount has reached MaxSockets. Always false
// when MaxSockets is zero.
func (sc *SocketController) IsFull() bool {
	if sc.MaxSockets <= 0 {
		return false
	}
	return sc.SocketCount() >= sc.MaxSockets
}

func (sc *SocketController) registerTCPServer(item *tcpServerItem) {
	sc.mu.Lock()
	sc.tcpServers[item.id] = item
	sc.mu.Unlock()
}

func (sc *SocketController) unregisterTCPServer(id ChannelID) {
	sc.mu.Lock()
	delete(sc.tcpServers, id)
	sc.mu.Unlock()
}

func (sc *SocketController) registerTCPClient(item *tcpClientItem) {
	sc.mu.Lock()
	sc.tcpClients[item.id] = item
	sc.mu.Unlock()
}

func (sc *SocketController) unregisterTCPClient(id ChannelID) {
	sc.mu.Lock()
	delete(sc.tcpClients, id)
	sc.mu.Unlock()
}

func (sc *SocketController) lookupTCPClient(id ChannelID) (*tcpClientItem, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	item, ok := sc.tcpClients[id]
	return item, ok
}

func (sc *SocketController) registerTCPChannel(item *tcpChannelItem) {
	sc.mu.Lock()
	sc.tcpChannels[item.id] = item
	sc.mu.Unlock()
}

func (sc *SocketController) unregisterTCPChannel(id ChannelID) {
	sc.mu.Lock()
	delete(sc.tcpChannels, id)
	sc.mu.Unlock()
}

func (sc *SocketController) lookupTCPChannel(id ChannelID) (*tcpChannelItem, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	item, ok := sc.tcpChannels[id]
	return item, ok
}

func (sc *SocketController) registerUDPReceiver(item *udpReceiverItem) {
	sc.mu.Lock()
	sc.udpReceivers[item.id] = item
	sc.mu.Unlock()
}

func (sc *SocketController) unregisterUDPReceiver(id ChannelID) {
	sc.mu.Lock()
	delete(sc.udpReceivers, id)
	sc.mu.Unlock()
}

// closeAll closes every registered item, used when the owning Thread's loop
// exits (spec.md §4.6, "controller teardown closes all registered sockets").
func (sc *SocketController) closeAll() {
	sc.mu.Lock()
	servers := make([]*tcpServerItem, 0, len(sc.tcpServers))
	for _, s := range sc.tcpServers {
		servers = append(servers, s)
	}
	clients := make([]*tcpClientItem, 0, len(sc.tcpClients))
	for _, cl := range sc.tcpClients {
		clients = append(clients, cl)
	}
	channels := make([]*tcpChannelItem, 0, len(sc.tcpChannels))
	for _, c := range sc.tcpChannels {
		channels = append(channels, c)
	}
	receivers := make([]*udpReceiverItem, 0, len(sc.udpReceivers))
	for _, r := range sc.udpReceivers {
		receivers = append(receivers, r)
	}
	sc.mu.Unlock()

	for _, s := range servers {
		s.server.Close()
	}
	for _, cl := range clients {
		cl.cancelled.Store(true)
		cl.cancel()
	}
	for _, c := range channels {
		c.channel.Close()
		// the loop is exiting, so no posted close task will run: fire the
		// close handler here.
		c.channel.finishClose(nil)
	}
	for _, r := range receivers {
		r.receiver.Close()
	}
}
