package version

import "cart-flipper/server/internal/net/packet"

// Responder answers version requests on a peer.
type Responder struct {
	version string
	sender  Sender
}

func NewResponder(version string, sender Sender) *Responder {
	return &Responder{version: version, sender: sender}
}

// Register installs the version-request handler.
func (r *Responder) Register(registrar Registrar) error {
	return registrar.Register(CommandRequest, r.Handle)
}

// Handle replies to the requester with our version.
func (r *Responder) Handle(sender uint64, _ []byte) {
	r.sender.Send(sender, CommandReport, packet.StringPayload(r.version))
}
