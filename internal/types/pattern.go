// Package types holds the handful of value types shared between the csx
// root package and every internal pipeline stage (partition, ir, stats,
// encode, build, codegen, exec). Keeping them in their own leaf package
// lets the internal stages import each other's dependencies without the
// root package creating an import cycle; csx re-exports the public ones
// as type aliases.
package types

// offset is the constant used to derive a dense pattern id from a
// (type, param) pair: id = type*offset + param (spec.md §3, "Pattern id").
const offset = 10000

// EncodingType identifies one of the iteration orders CSX searches for
// regular substructure along (spec.md §3, "Pattern descriptor").
type EncodingType int

const (
	// TypeDeltaRun is the irregular fallback: a run of non-zeros carried
	// individually, encoded with a delta width chosen per record.
	TypeDeltaRun EncodingType = iota
	TypeHorizontal
	TypeVertical
	TypeDiagonal
	TypeAntiDiagonal
	TypeBlockRow
	TypeBlockCol
)

func (t EncodingType) String() string {
	switch t {
	case TypeDeltaRun:
		return "delta"
	case TypeHorizontal:
		return "horizontal"
	case TypeVertical:
		return "vertical"
	case TypeDiagonal:
		return "diagonal"
	case TypeAntiDiagonal:
		return "anti-diagonal"
	case TypeBlockRow:
		return "block-row"
	case TypeBlockCol:
		return "block-col"
	default:
		return "unknown"
	}
}

// IsBlock reports whether t is one of the two block types, which carry
// OtherDim rather than Delta as the param half of their pattern id.
func (t EncodingType) IsBlock() bool {
	return t == TypeBlockRow || t == TypeBlockCol
}

// AllEncodingTypes is the set tried when preproc.xform is "all".
var AllEncodingTypes = []EncodingType{
	TypeHorizontal, TypeVertical, TypeDiagonal, TypeAntiDiagonal,
	TypeBlockRow, TypeBlockCol,
}

// Pattern is the immutable descriptor of spec.md §3: (type, size, delta[,
// other_dim]). It identifies a concrete instantiation - e.g. horizontal
// with delta 3, or block-row with r=2, other_dim=4 - without carrying the
// pattern's payload (the payload lives in the owning Element's value slot
// or, once built, in the CSX values stream).
type Pattern struct {
	Type  EncodingType
	Size  int   // element count, >= 2
	Delta int64 // stride between consecutive elements, in the pattern's natural order

	// OtherDim applies to block patterns only: together with Size/R it
	// fixes the block's second dimension (R for block-row, C for
	// block-col).
	OtherDim int
}

// Param returns the (delta-or-block-dimension) half of the pattern id
// formula.
func (p Pattern) Param() int64 {
	if p.Type.IsBlock() {
		return int64(p.OtherDim)
	}
	return p.Delta
}

// ID computes the dense pattern id type*offset + param (spec.md §3).
func (p Pattern) ID() int64 {
	return PatternID(p.Type, p.Param())
}

// PatternID is the (type, param) -> id half of the formula, used by the
// statistics engine and encoder which key instantiations before a Pattern's
// Size is settled.
func PatternID(t EncodingType, param int64) int64 {
	return int64(t)*offset + param
}

// SplitPatternID decomposes a dense pattern id back into its type and
// param, the inverse of PatternID. Used when restoring an id_map entry
// from a persisted CSX image.
func SplitPatternID(id int64) (t EncodingType, param int64) {
	return EncodingType(id / offset), id % offset
}
