// Package identity defines the node's vault/identity/node-state
// collaborator contract and a filesystem-backed reference implementation
// of it. The core packages (router, portal) only ever depend on the
// StateDirectory interface; fsstate.go is what cmd/relay actually wires
// up so the binary runs end to end.
package identity

import "fmt"

// VaultHandle is opaque to the core: it is passed to identity operations
// but its contents are never inspected outside this package.
type VaultHandle struct {
	Name string
	path string
}

// IdentityHandle wraps a SPIFFE-style identity string plus a handle to
// its backing credential material.
type IdentityHandle struct {
	Name     string
	SpiffeID string
	path     string
}

// NodeOptions configures CreateNode. An empty VaultName/IdentityName
// means "use the category's default," mirroring the reference CLI's
// `vaults.default()`/`identities.default()` fallback.
type NodeOptions struct {
	VaultName    string
	IdentityName string
}

// NodeState is the set of paths a running node needs: its control
// socket, its log files, its recorded version, and symlinks back to the
// vault/identity it was created with.
type NodeState struct {
	Name         string
	Dir          string
	SocketPath   string
	StdoutPath   string
	StderrPath   string
	VersionPath  string
	VaultLink    string
	IdentityLink string
}

// StateDirectory is the external collaborator the node runtime uses for
// everything persistence-related. The core never talks to the
// filesystem directly — only through this interface — so an in-memory
// fake can stand in for it in tests.
type StateDirectory interface {
	OpenVault(name string) (VaultHandle, error)
	OpenIdentity(name string) (IdentityHandle, error)
	CreateNode(name string, opts NodeOptions) (NodeState, error)
}

// ErrNotFound is wrapped by OpenVault/OpenIdentity when the named (or
// default) resource does not exist.
var ErrNotFound = fmt.Errorf("identity: not found")
