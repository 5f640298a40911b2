package altstore

import "github.com/nikosl/smoldb/internal/storage"

// Store satisfies storage.Storage directly.
var _ storage.Storage = (*Store)(nil)
