package affiliate

import "github.com/xraph/affiliate/id"

// ID is the primary identifier type for all affiliate entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
