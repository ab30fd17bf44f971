package network

import (
	"strings"
)

type Type string

const (
	Mainnet Type = "mainnet"
	Testnet Type = "testnet"
	Devnet  Type = "devnet"
	Local   Type = "localnet"
)

// UnsupportedMessage is shown in place of the dashboard on any network the
// DCA protocol is not deployed to.
const UnsupportedMessage = "DCA is only available on mainnet / testnet. Switch networks and try again."

func Parse(raw string) Type {
	return Type(strings.ToLower(strings.TrimSpace(raw)))
}

func (t Type) Supported() bool {
	return t == Mainnet || t == Testnet
}

// Env is the protocol environment for t. Anything that is not mainnet is
// served by the testnet deployment.
func (t Type) Env() Type {
	if t == Mainnet {
		return Mainnet
	}
	return Testnet
}

// TransactionURL links a transaction digest on the block explorer rooted at base.
func TransactionURL(base, digest string) string {
	digest = strings.TrimSpace(digest)
	if digest == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/txblock/" + digest
}
