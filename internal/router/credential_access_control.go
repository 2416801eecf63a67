package router

import "github.com/ocx/relay/internal/identity"

// CredentialAccessControl admits a message only if the peer identity
// bound to it presents a SPIFFE SVID the verifier accepts. It is the one
// router.AccessControl variant the reference implementation left as a
// TODO ("need a way to specify AC for incoming... over SecureChannel");
// this repository resolves it concretely against internal/identity
// rather than leaving the portal's remote mailbox wide open.
type CredentialAccessControl struct {
	Verifier *identity.CredentialVerifier
	Peer     identity.IdentityHandle
}

func (c CredentialAccessControl) Decide(_, _ Address, _ RoutedMessage) bool {
	if c.Verifier == nil {
		return false
	}
	_, err := c.Verifier.Verify(c.Peer)
	return err == nil
}
