package server

const (
	// ProtocolVersion is the version string every peer must report to the
	// authority's version guard.
	ProtocolVersion = "0.1.10"

	// DefaultAuthorityID is the authority's routing id. Peers must pick any
	// other non-zero id.
	DefaultAuthorityID uint64 = 1
	// DefaultOwner is the authority's object namespace.
	DefaultOwner uint32 = 1

	tickRate            = 15 // Hz
	commandCapacity     = 256
	perActorLimit       = 8
	queueWarningStep    = 64
	catchupMaxTicks     = 3
	defaultRequestBurst = 4
	demoCartName        = "Cart"
	demoCartMass        = 40.0
	demoCartSpacing     = 3.0
)
