package identity

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// CredentialVerifier checks that an IdentityHandle's SPIFFE ID is backed
// by a live SVID from the local SPIRE agent, and hands out mTLS config
// derived from it. This is what a credential-backed router.AccessControl
// consults before admitting a portal's remote mailbox to route traffic
// for a given peer identity.
type CredentialVerifier struct {
	source *workloadapi.X509Source
}

// NewCredentialVerifier dials the SPIRE agent at socketPath. A short
// timeout keeps a missing agent from hanging node startup indefinitely.
func NewCredentialVerifier(socketPath string) (*CredentialVerifier, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	source, err := workloadapi.NewX509Source(
		ctx,
		workloadapi.WithClientOptions(workloadapi.WithAddr(socketPath)),
	)
	if err != nil {
		return nil, fmt.Errorf("identity: connect to SPIRE at %s: %w", socketPath, err)
	}

	slog.Info("identity: connected to SPIRE agent", "socket_path", socketPath)
	return &CredentialVerifier{source: source}, nil
}

// Verify checks that handle's SpiffeID matches the workload's current
// SVID and returns a stable hash of the certificate for audit logging.
func (v *CredentialVerifier) Verify(handle IdentityHandle) (svidHash uint64, err error) {
	id, err := spiffeid.FromString(handle.SpiffeID)
	if err != nil {
		return 0, fmt.Errorf("identity: invalid SPIFFE ID %q: %w", handle.SpiffeID, err)
	}

	svid, err := v.source.GetX509SVID()
	if err != nil {
		return 0, fmt.Errorf("identity: fetch SVID: %w", err)
	}

	if svid.ID.String() != id.String() {
		return 0, fmt.Errorf("identity: SPIFFE ID mismatch: expected %s, got %s", id, svid.ID)
	}

	hash := hashCert(svid.Certificates[0].Raw)
	slog.Info("identity: verified SPIFFE ID", "spiffe_id", handle.SpiffeID, "svid_hash", hash)
	return hash, nil
}

func hashCert(certDER []byte) uint64 {
	sum := sha256.Sum256(certDER)
	var h uint64
	for i := 0; i < 8; i++ {
		h = (h << 8) | uint64(sum[i])
	}
	return h
}

// TLSConfig returns an mTLS config authorized by any SPIFFE ID in the
// trust domain; the portal layer does its own routing-level access
// control, so SPIFFE authorization here only establishes transport
// identity, not policy.
func (v *CredentialVerifier) TLSConfig() *tls.Config {
	return tlsconfig.MTLSClientConfig(v.source, v.source, tlsconfig.AuthorizeAny())
}

// Close releases the underlying SPIRE workload API connection.
func (v *CredentialVerifier) Close() error {
	return v.source.Close()
}

// SpiffeIDFor builds the canonical SPIFFE ID for a node within a trust
// domain, e.g. "spiffe://relay.example.com/node/edge-01".
func SpiffeIDFor(trustDomain, nodeName string) string {
	return fmt.Sprintf("spiffe://%s/node/%s", trustDomain, nodeName)
}
