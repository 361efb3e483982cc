package quarry

import "github.com/quarrylabs/quarry/id"

// ID is the primary identifier type for all quarry entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
