package netparams

// Params defines the parameters that differ between the networks crowd
// can run on. All network-dependent defaults are resolved through the
// active Params instance rather than hard-coded constants.
type Params struct {
	// Name is the human-readable network name. It is also used as the
	// per-network subdirectory name for logs.
	Name string

	// RPCPort is the default port the RPC server listens on when no
	// explicit port was configured.
	RPCPort string
}

// MainnetParams defines the network parameters for the main network.
var MainnetParams = Params{
	Name:    "mainnet",
	RPCPort: "17110",
}

// TestnetParams defines the network parameters for the test network.
var TestnetParams = Params{
	Name:    "testnet",
	RPCPort: "17210",
}

// SimnetParams defines the network parameters for the simulation test
// network. It exists for private integration tests and carries no
// publicly routable infrastructure.
var SimnetParams = Params{
	Name:    "simnet",
	RPCPort: "17510",
}

// DevnetParams defines the network parameters for the development test
// network.
var DevnetParams = Params{
	Name:    "devnet",
	RPCPort: "17610",
}
