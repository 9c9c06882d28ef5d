package protocol

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"fmt"
	"hash"
	"strings"
)

var (
	ErrIncorrectMessageKind  = errors.New("incorrect message kind")
	ErrIncorrectHashKind     = errors.New("incorrect hash kind")
	ErrUnexpectedEndOfStream = errors.New("unexpected end of stream")
	ErrIndexMismatch         = errors.New("piece index mismatch")
	ErrDigestMismatch        = errors.New("digest mismatch")
	ErrTopicTooLong          = errors.New("topic longer than 255 bytes")
	ErrPieceTooLarge         = errors.New("piece larger than maximum piece size")
	ErrNameTooLong           = errors.New("file name too long")
)

// Message Types
type MessageKind uint8

const (
	KindPublish MessageKind = iota
	KindRequest
	KindFileInfo
	KindFilePiece
	KindText
	KindYes
	KindNo
	KindDone
)

func (k MessageKind) String() string {
	switch k {
	case KindPublish:
		return "PUBLISH"
	case KindRequest:
		return "REQUEST"
	case KindFileInfo:
		return "FILE_INFO"
	case KindFilePiece:
		return "FILE_PIECE"
	case KindText:
		return "TEXT"
	case KindYes:
		return "YES"
	case KindNo:
		return "NO"
	case KindDone:
		return "DONE"
	default:
		return fmt.Sprintf("MessageKind(%d)", uint8(k))
	}
}

// HashKind selects the digest applied to a whole file or a single piece.
type HashKind uint8

const (
	HashNone HashKind = iota
	HashSHA1
	HashMD5
)

// Size is the digest length in bytes.
func (h HashKind) Size() int {
	switch h {
	case HashSHA1:
		return sha1.Size
	case HashMD5:
		return md5.Size
	default:
		return 0
	}
}

// Valid reports whether h is one of the known hash kinds.
func (h HashKind) Valid() bool {
	return h <= HashMD5
}

// New returns a fresh hasher, or nil for HashNone.
func (h HashKind) New() hash.Hash {
	switch h {
	case HashSHA1:
		return sha1.New()
	case HashMD5:
		return md5.New()
	default:
		return nil
	}
}

func (h HashKind) String() string {
	switch h {
	case HashNone:
		return "none"
	case HashSHA1:
		return "sha1"
	case HashMD5:
		return "md5"
	default:
		return fmt.Sprintf("HashKind(%d)", uint8(h))
	}
}

// ParseHashKind accepts "none", "sha1" and "md5" in any case.
func ParseHashKind(s string) (HashKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return HashNone, nil
	case "sha1", "sha-1":
		return HashSHA1, nil
	case "md5":
		return HashMD5, nil
	}
	return HashNone, fmt.Errorf("%w: %q", ErrIncorrectHashKind, s)
}

func hashKindFromByte(b byte) (HashKind, error) {
	h := HashKind(b)
	if !h.Valid() {
		return HashNone, fmt.Errorf("%w: %d", ErrIncorrectHashKind, b)
	}
	return h, nil
}

// ID is the 4 byte identifier a publisher embeds in every announcement of one publish call.
type ID [4]byte

// NewID draws a random identifier.
func NewID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("failed to generate identifier: %w", err)
	}
	return id, nil
}

func (id ID) String() string {
	return fmt.Sprintf("%x", id[:])
}

const (
	// MaxTopicLength is bounded by the single length byte in PUBLISH and REQUEST.
	MaxTopicLength = 255
	// MaxPublishPacketSize is the receive buffer size for announcements.
	MaxPublishPacketSize = 1 + 1 + 256 + 1 + 4 + 4
	// MinPublishPacketSize is an announcement with an empty topic.
	MinPublishPacketSize = 1 + 1 + 1 + 4 + 4
	MaxPieceSize         = 1 << 16
	DefaultPieceSize     = 1 << 16
	MaxNameLength        = 4096
	DefaultHashKind      = HashSHA1
)

const (
	DefaultMulticastIPv4 = "224.0.0.3"
	// Flags R=0 P=0 T=1, link-local scope (RFC 4291 section 2.7)
	DefaultMulticastIPv6 = "ff12::"
	DefaultPort          = 7301
)
