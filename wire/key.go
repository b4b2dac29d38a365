// Package wire defines the key types and wire-level conventions shared by
// every component of the cache: 64-bit object identifiers, monotonically
// increasing transaction context identifiers, and the ordered binding-name
// keyspace with its FIRST/LAST sentinels.
package wire

import (
	"bytes"
	"fmt"
)

// OID identifies an object in the object keyspace.
type OID uint64

// ContextID is the ordinal assigned to a transaction when it joins; it is
// monotonically increasing and used both for LRU-style ordering and for
// settled-ness tests against the update queue.
type ContextID uint64

// NodeID identifies this cache's registration with the authoritative server.
type NodeID uint64

// bindingKind distinguishes an ordinary name from the two synthetic
// sentinels. Sentinels never carry a name and compare as less/greater than
// every ordinary name.
type bindingKind uint8

const (
	kindName bindingKind = iota
	kindFirst
	kindLast
)

// BindingKey is a value in the ordered binding (name) keyspace. Ordinary
// keys wrap a UTF-8 name compared by unsigned byte order; FIRST compares
// strictly below every name and LAST compares strictly above every name.
// BindingKey is comparable and safe to use as a map key.
type BindingKey struct {
	kind bindingKind
	name string
}

// First returns the synthetic sentinel strictly below every name.
func First() BindingKey { return BindingKey{kind: kindFirst} }

// Last returns the synthetic sentinel strictly above every name.
func Last() BindingKey { return BindingKey{kind: kindLast} }

// Name wraps an ordinary UTF-8 binding name.
func Name(name string) BindingKey { return BindingKey{kind: kindName, name: name} }

// IsFirst reports whether k is the FIRST sentinel.
func (k BindingKey) IsFirst() bool { return k.kind == kindFirst }

// IsLast reports whether k is the LAST sentinel.
func (k BindingKey) IsLast() bool { return k.kind == kindLast }

// IsName reports whether k wraps an ordinary name.
func (k BindingKey) IsName() bool { return k.kind == kindName }

// String renders k for logging; sentinels render as angle-bracketed tags
// since those tags are never legal binding names (the grammar admits any
// UTF-8 string as a name, so a printable tag is the only collision-free
// choice short of an out-of-band flag).
func (k BindingKey) String() string {
	switch k.kind {
	case kindFirst:
		return "<FIRST>"
	case kindLast:
		return "<LAST>"
	default:
		return k.name
	}
}

// rank places FIRST below every name and LAST above every name so the two
// sentinels and the ordinary-name case can be compared uniformly.
func (k BindingKey) rank() int {
	switch k.kind {
	case kindFirst:
		return -1
	case kindLast:
		return 1
	default:
		return 0
	}
}

// Compare orders BindingKeys: FIRST < any name < LAST, names compared by
// unsigned lexicographic byte order of their UTF-8 encoding.
func Compare(a, b BindingKey) int {
	rankA, rankB := a.rank(), b.rank()
	if rankA != rankB {
		if rankA < rankB {
			return -1
		}
		return 1
	}
	if rankA != 0 {
		return 0 // both sentinels of the same kind
	}
	return bytes.Compare([]byte(a.name), []byte(b.name))
}

// AllowLast returns the name suitable for returning to a caller of
// nextBoundName: an ordinary name renders as itself, but the LAST sentinel
// renders as an empty string tagged by IsLast() so callers can distinguish
// "no bound name above this point" from the empty-string name.
func (k BindingKey) AllowLast() (name string, isLast bool) {
	if k.kind == kindLast {
		return "", true
	}
	return k.name, false
}

// CompareSortedMap adapts Compare to the (interface{}, interface{}) int
// signature required by github.com/NVIDIA/sortedmap's tree constructors.
func CompareSortedMap(a, b interface{}) (int, error) {
	keyA, ok := a.(BindingKey)
	if !ok {
		return 0, fmt.Errorf("wire.CompareSortedMap: key %v is not a BindingKey", a)
	}
	keyB, ok := b.(BindingKey)
	if !ok {
		return 0, fmt.Errorf("wire.CompareSortedMap: key %v is not a BindingKey", b)
	}
	return Compare(keyA, keyB), nil
}

// InOpenRange reports whether name falls strictly between lo and hi, i.e.
// lo < name < hi, using Compare's ordering.
func InOpenRange(name, lo, hi BindingKey) bool {
	return Compare(lo, name) < 0 && Compare(name, hi) < 0
}
