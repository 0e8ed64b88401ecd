package evnet

import "sync/atomic"

// ChannelID identifies an arena entry owned by a SocketController: a
// TCPServer, TCPChannel, TCPClient or UDPReceiver/UDPSender. Per spec.md §9's
// redesign note, user code and the controller both hold ChannelID values
// instead of sharing ownership of the underlying socket, which makes
// cross-thread handoff a plain copy.
type ChannelID uint64

// invalidChannelID never issued by nextChannelID; a zero value reports "no
// channel" the way a nil pointer would in the shared-ownership source.
const invalidChannelID ChannelID = 0

var channelIDCounter uint64

func nextChannelID() ChannelID {
	return ChannelID(atomic.AddUint64(&channelIDCounter, 1))
}
