package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Packet is any message that can be written to a connection or datagram.
type Packet interface {
	Kind() MessageKind
	MarshalBinary() ([]byte, error)
}

// Publish is the multicast announcement of a topic.
type Publish struct {
	Topic       string
	PayloadKind MessageKind // KindText or KindFilePiece
	Port        uint16
	ID          ID
}

func (p *Publish) Kind() MessageKind { return KindPublish }

// MarshalBinary: kind(1) topicLen(1) topic payloadKind(1) port(4) id(4)
func (p *Publish) MarshalBinary() ([]byte, error) {
	if len(p.Topic) > MaxTopicLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTopicTooLong, len(p.Topic))
	}
	buf := make([]byte, 0, 1+1+len(p.Topic)+1+4+4)
	buf = append(buf, byte(KindPublish), byte(len(p.Topic)))
	buf = append(buf, p.Topic...)
	buf = append(buf, byte(p.PayloadKind))
	buf = binary.BigEndian.AppendUint32(buf, uint32(p.Port))
	buf = append(buf, p.ID[:]...)
	return buf, nil
}

// Request is sent by a subscriber right after connecting to an announced endpoint.
type Request struct {
	Topic string
	ID    ID
}

func (r *Request) Kind() MessageKind { return KindRequest }

// MarshalBinary: kind(1) topicLen(1) topic id(4)
func (r *Request) MarshalBinary() ([]byte, error) {
	if len(r.Topic) > MaxTopicLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTopicTooLong, len(r.Topic))
	}
	buf := make([]byte, 0, 1+1+len(r.Topic)+4)
	buf = append(buf, byte(KindRequest), byte(len(r.Topic)))
	buf = append(buf, r.Topic...)
	buf = append(buf, r.ID[:]...)
	return buf, nil
}

// FileInfo precedes the pieces of one file.
type FileInfo struct {
	Name       string
	FileLength uint64
	HashKind   HashKind
	Digest     []byte
}

func (f *FileInfo) Kind() MessageKind { return KindFileInfo }

// MarshalBinary: kind(1) nameLen(4) name fileLength(8) hashKind(1) digest
func (f *FileInfo) MarshalBinary() ([]byte, error) {
	if len(f.Name) > MaxNameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(f.Name))
	}
	if !f.HashKind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrIncorrectHashKind, f.HashKind)
	}
	if len(f.Digest) != f.HashKind.Size() {
		return nil, fmt.Errorf("digest length %d does not match %s", len(f.Digest), f.HashKind)
	}
	buf := make([]byte, 0, 1+4+len(f.Name)+8+1+len(f.Digest))
	buf = append(buf, byte(KindFileInfo))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Name)))
	buf = append(buf, f.Name...)
	buf = binary.BigEndian.AppendUint64(buf, f.FileLength)
	buf = append(buf, byte(f.HashKind))
	buf = append(buf, f.Digest...)
	return buf, nil
}

// FilePiece carries one indexed chunk of a file and an optional digest of that chunk.
type FilePiece struct {
	Index    uint32
	Data     []byte
	HashKind HashKind
	Digest   []byte
}

// NewFilePiece digests data with h (nothing for HashNone).
func NewFilePiece(index uint32, data []byte, h HashKind) *FilePiece {
	return &FilePiece{
		Index:    index,
		Data:     data,
		HashKind: h,
		Digest:   Digest(h, data),
	}
}

func (p *FilePiece) Kind() MessageKind { return KindFilePiece }

// MarshalBinary: kind(1) index(4) pieceLen(4) piece hashKind(1) digest (absent for HashNone)
func (p *FilePiece) MarshalBinary() ([]byte, error) {
	if len(p.Data) > MaxPieceSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPieceTooLarge, len(p.Data))
	}
	if !p.HashKind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrIncorrectHashKind, p.HashKind)
	}
	if len(p.Digest) != p.HashKind.Size() {
		return nil, fmt.Errorf("digest length %d does not match %s", len(p.Digest), p.HashKind)
	}
	buf := make([]byte, 0, 1+4+4+len(p.Data)+1+len(p.Digest))
	buf = append(buf, byte(KindFilePiece))
	buf = binary.BigEndian.AppendUint32(buf, p.Index)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Data)))
	buf = append(buf, p.Data...)
	buf = append(buf, byte(p.HashKind))
	buf = append(buf, p.Digest...)
	return buf, nil
}

// Verify recomputes the digest over Data.
func (p *FilePiece) Verify() error {
	if p.HashKind == HashNone {
		return nil
	}
	if actual := Digest(p.HashKind, p.Data); !bytes.Equal(actual, p.Digest) {
		return fmt.Errorf("%w: piece %d: calculated %x, received %x", ErrDigestMismatch, p.Index, actual, p.Digest)
	}
	return nil
}

// Text carries one indexed chunk of a text payload.
type Text struct {
	Index uint32
	Data  []byte
}

func (t *Text) Kind() MessageKind { return KindText }

// MarshalBinary: kind(1) index(4) textLen(4) text
func (t *Text) MarshalBinary() ([]byte, error) {
	if len(t.Data) > MaxPieceSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPieceTooLarge, len(t.Data))
	}
	buf := make([]byte, 0, 1+4+4+len(t.Data))
	buf = append(buf, byte(KindText))
	buf = binary.BigEndian.AppendUint32(buf, t.Index)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(t.Data)))
	buf = append(buf, t.Data...)
	return buf, nil
}

// Signal is a message consisting of only its kind byte (YES, NO, DONE).
type Signal MessageKind

const (
	Yes  = Signal(KindYes)
	No   = Signal(KindNo)
	Done = Signal(KindDone)
)

func (s Signal) Kind() MessageKind { return MessageKind(s) }

func (s Signal) MarshalBinary() ([]byte, error) {
	return []byte{byte(s)}, nil
}

func (s Signal) String() string {
	return MessageKind(s).String()
}

// Digest returns the digest of data under h, or nil for HashNone.
func Digest(h HashKind, data []byte) []byte {
	hasher := h.New()
	if hasher == nil {
		return nil
	}
	hasher.Write(data)
	return hasher.Sum(nil)
}
