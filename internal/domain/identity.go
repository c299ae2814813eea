package domain

import (
	"strconv"
	"strings"
)

// Identity names a user for presence and room purposes.
type Identity string

func (i Identity) Valid() bool {
	return strings.TrimSpace(string(i)) != ""
}

func (i Identity) String() string { return string(i) }

// RoomKey groups the connections of a two-party conversation.
type RoomKey string

// RoomKeyFor returns the same key for (a, b) and (b, a).
// The length prefix keeps the key unambiguous whatever characters an identity holds.
func RoomKeyFor(a, b Identity) RoomKey {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	var sb strings.Builder
	sb.Grow(len(lo) + len(hi) + 8)
	sb.WriteString("dm:")
	sb.WriteString(strconv.Itoa(len(lo)))
	sb.WriteByte(':')
	sb.WriteString(string(lo))
	sb.WriteByte(':')
	sb.WriteString(string(hi))
	return RoomKey(sb.String())
}

// IdentityFromEmail returns the local-part of an email address.
func IdentityFromEmail(email string) (Identity, error) {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "", ErrInvalidIdentity
	}
	return Identity(email[:at]), nil
}
