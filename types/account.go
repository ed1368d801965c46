package types

import "strings"

// AccountID identifies a token holder: a subscriber, the ledger's custody
// account, a distribution recipient or the sink.
type AccountID string

// IsZero reports whether the account id is empty.
func (a AccountID) IsZero() bool { return strings.TrimSpace(string(a)) == "" }

// String returns the account id as a string.
func (a AccountID) String() string { return string(a) }
