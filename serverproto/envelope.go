package serverproto

import (
	"fmt"

	"github.com/NVIDIA/cstruct"
)

// envelopeVersion distinguishes future on-wire layouts from the one
// PackValue/UnpackValue implement today, the same role inode.go's Version
// plays ahead of its onDiskInodeV1Struct.
type envelopeVersion uint16

const envelopeV1 envelopeVersion = 1

// corruptionDetected precedes every packed value the same way inode.go's
// on-disk inode record leads with a CorruptionDetected flag before its
// Version: a byte the unpacking side can flip to true once it has read a
// value's trailing bytes, giving a crash mid-write a chance to be noticed
// on the next read rather than silently served as valid.
type corruptionDetected bool

// PackValue wraps value with a fixed little-endian header (corruption flag,
// then envelope version) ahead of the raw payload, the same framing
// inode.go uses for onDiskInodeV1Struct, so a value shipped through
// commitObject/commitBinding carries a version byte future envelope
// revisions can switch on. It is used only on the local write path; values
// fetched from the server already arrive as a committed, trusted envelope
// the server itself is responsible for framing.
func PackValue(value []byte) ([]byte, error) {
	corruptionHeader, err := cstruct.Pack(corruptionDetected(false), cstruct.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("serverproto: packing corruption header: %w", err)
	}
	versionHeader, err := cstruct.Pack(envelopeV1, cstruct.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("serverproto: packing envelope version: %w", err)
	}
	out := make([]byte, 0, len(corruptionHeader)+len(versionHeader)+len(value))
	out = append(out, corruptionHeader...)
	out = append(out, versionHeader...)
	out = append(out, value...)
	return out, nil
}

// UnpackValue reverses PackValue, rejecting an envelope whose corruption
// flag was ever set true or whose version this node does not recognize.
func UnpackValue(envelope []byte) (value []byte, err error) {
	var corrupt corruptionDetected
	consumed, err := cstruct.Unpack(envelope, &corrupt, cstruct.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("serverproto: unpacking corruption header: %w", err)
	}
	if corrupt {
		return nil, fmt.Errorf("serverproto: envelope corruption flag set")
	}
	envelope = envelope[consumed:]

	var version envelopeVersion
	versionConsumed, err := cstruct.Unpack(envelope, &version, cstruct.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("serverproto: unpacking envelope version: %w", err)
	}
	if version != envelopeV1 {
		return nil, fmt.Errorf("serverproto: unrecognized envelope version %d", version)
	}
	return envelope[versionConsumed:], nil
}
