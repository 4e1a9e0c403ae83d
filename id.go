package thermal

import "github.com/xraph/thermal/id"

// ID is the identifier type for production records and events.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
