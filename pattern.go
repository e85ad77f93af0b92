package csx

import "github.com/jbowman-csx/csx/internal/types"

// Pattern is the immutable descriptor of spec.md §3: (type, size, delta[,
// other_dim]). See internal/types.Pattern for the field-level contract; it
// is aliased here so public API signatures can name csx.Pattern directly.
type Pattern = types.Pattern
