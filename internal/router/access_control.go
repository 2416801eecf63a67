package router

// AccessControl decides whether a message may cross a mailbox boundary.
// src/dst are the message's actual source and the mailbox address being
// checked (the same interface gates both incoming delivery and outgoing
// send, from the checked mailbox's point of view).
type AccessControl interface {
	Decide(src, dst Address, msg RoutedMessage) bool
}

// DenyAll rejects every message. Used for a mailbox's outgoing side when
// the owning actor only ever receives (e.g. the portal worker's internal
// mailbox never sends outward) or for an incoming side nothing but the
// worker itself should ever reach.
type DenyAll struct{}

func (DenyAll) Decide(Address, Address, RoutedMessage) bool { return false }

// AllowAll admits every message. Used sparingly — mostly in tests, or for
// a mailbox whose security boundary is enforced elsewhere (e.g. at the
// TCP listener accepting the connection in the first place).
type AllowAll struct{}

func (AllowAll) Decide(Address, Address, RoutedMessage) bool { return true }

// LocalOriginOnly admits a message only if it did not arrive carrying a
// return-route hop that implies it crossed a transport boundary — here
// approximated as "Source is non-empty and unmodified," since this node
// has no remote-origin marking of its own beyond what routes already
// carry.
type LocalOriginOnly struct{}

func (LocalOriginOnly) Decide(src, _ Address, _ RoutedMessage) bool {
	return src != ""
}

// AllowSourceAddress admits a message only if its Source matches the
// configured address exactly — the access-control rule a portal's
// internal mailbox would use to admit only its own receive processor,
// had the reference implementation's TODO comment been resolved to
// Allow rather than Deny.
type AllowSourceAddress struct {
	Addr Address
}

func (a AllowSourceAddress) Decide(src, _ Address, _ RoutedMessage) bool {
	return src == a.Addr
}

// AllowDestinationAddress admits a message only if the mailbox being
// checked is the configured address.
type AllowDestinationAddress struct {
	Addr Address
}

func (a AllowDestinationAddress) Decide(_, dst Address, _ RoutedMessage) bool {
	return dst == a.Addr
}

// AnyOf admits a message if any of its member controls would.
type AnyOf []AccessControl

func (a AnyOf) Decide(src, dst Address, msg RoutedMessage) bool {
	for _, ctrl := range a {
		if ctrl.Decide(src, dst, msg) {
			return true
		}
	}
	return false
}
