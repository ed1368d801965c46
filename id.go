package tierledger

import "github.com/xraph/tierledger/id"

// ID is the identifier type for persisted tierledger records.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
