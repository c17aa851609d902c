// Package objectid names shared world objects across processes.
//
// An ID pairs the routing-owner process that created the object with a random
// disambiguator. Both sides of a connection must agree byte-for-byte on the
// canonical "owner:disambiguator" form, so every function here is pure.
package objectid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cart-flipper/server/internal/net/packet"
)

// Separator splits the owner and disambiguator halves of the canonical form.
const Separator = ":"

// ErrMalformedIdentifier is returned when a wire string is not a canonical ID.
var ErrMalformedIdentifier = errors.New("malformed object identifier")

// ID is a process-pair-scoped object identifier.
type ID struct {
	Owner         uint32
	Disambiguator uint32
}

// String returns the canonical "owner:disambiguator" form.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id.Owner), 10) + Separator + strconv.FormatUint(uint64(id.Disambiguator), 10)
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id.Owner == 0 && id.Disambiguator == 0
}

// RoutingScalar packs the ID into the 64-bit envelope used by integer
// routing fields. The owner is written first, then the disambiguator, and the
// resulting buffer is read back as one fixed 64-bit field.
func (id ID) RoutingScalar() uint64 {
	buf := packet.NewWriter().WriteUint32(id.Owner).WriteUint32(id.Disambiguator).Bytes()
	scalar, err := packet.NewReader(buf).ReadUint64()
	if err != nil {
		// Two fixed 32-bit fields always fill one fixed 64-bit read.
		panic(fmt.Sprintf("objectid: packing %s: %v", id, err))
	}
	return scalar
}

// Parse decodes the canonical form. It fails with ErrMalformedIdentifier
// unless the input holds exactly one separator and both halves are unsigned
// 32-bit decimals.
func Parse(s string) (ID, error) {
	if strings.Count(s, Separator) != 1 {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	ownerPart, disPart, _ := strings.Cut(s, Separator)
	owner, err := strconv.ParseUint(ownerPart, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: owner: %v", ErrMalformedIdentifier, s, err)
	}
	dis, err := strconv.ParseUint(disPart, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: disambiguator: %v", ErrMalformedIdentifier, s, err)
	}
	return ID{Owner: uint32(owner), Disambiguator: uint32(dis)}, nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}
