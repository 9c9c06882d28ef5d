package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// readFull reads exactly len(buf) bytes; any shortfall is ErrUnexpectedEndOfStream.
func readFull(r io.Reader, buf []byte, what string) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: reading %s: %w", ErrUnexpectedEndOfStream, what, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("reading %s: %w", what, err)
	}
	return nil
}

func readByte(r io.Reader, what string) (byte, error) {
	var b [1]byte
	if err := readFull(r, b[:], what); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readUint32(r io.Reader, what string) (uint32, error) {
	var b [4]byte
	if err := readFull(r, b[:], what); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader, what string) (uint64, error) {
	var b [8]byte
	if err := readFull(r, b[:], what); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readBytes(r io.Reader, n int, what string) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if err := readFull(r, buf, what); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadKind consumes the leading kind byte of the next message.
func ReadKind(r io.Reader) (MessageKind, error) {
	b, err := readByte(r, "message kind")
	return MessageKind(b), err
}

// PeekKind returns the kind of the next message without consuming it.
func PeekKind(r *bufio.Reader) (MessageKind, error) {
	b, err := r.Peek(1)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("%w: peeking message kind: %w", ErrUnexpectedEndOfStream, io.ErrUnexpectedEOF)
		}
		return 0, err
	}
	return MessageKind(b[0]), nil
}

// IsDone consumes the next message if it is a DONE and reports whether it was.
func IsDone(r *bufio.Reader) (bool, error) {
	kind, err := PeekKind(r)
	if err != nil {
		return false, err
	}
	if kind != KindDone {
		return false, nil
	}
	_, err = r.Discard(1)
	return true, err
}

func expectKind(r io.Reader, want MessageKind) error {
	got, err := ReadKind(r)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrIncorrectMessageKind, want, got)
	}
	return nil
}

// ReadSignal reads one of the single byte messages and checks it is among allowed.
func ReadSignal(r io.Reader, allowed ...Signal) (Signal, error) {
	kind, err := ReadKind(r)
	if err != nil {
		return 0, err
	}
	for _, s := range allowed {
		if kind == s.Kind() {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: expected one of %v, got %s", ErrIncorrectMessageKind, allowed, kind)
}

func readTopic(r io.Reader) (string, error) {
	n, err := readByte(r, "topic length")
	if err != nil {
		return "", err
	}
	topic, err := readBytes(r, int(n), "topic")
	if err != nil {
		return "", err
	}
	return string(topic), nil
}

func readID(r io.Reader) (ID, error) {
	var id ID
	err := readFull(r, id[:], "identifier")
	return id, err
}

// ReadPublish decodes a PUBLISH message.
func ReadPublish(r io.Reader) (*Publish, error) {
	if err := expectKind(r, KindPublish); err != nil {
		return nil, err
	}
	topic, err := readTopic(r)
	if err != nil {
		return nil, err
	}
	payload, err := readByte(r, "payload kind")
	if err != nil {
		return nil, err
	}
	if kind := MessageKind(payload); kind != KindText && kind != KindFilePiece {
		return nil, fmt.Errorf("%w: publish payload %s", ErrIncorrectMessageKind, kind)
	}
	port, err := readUint32(r, "port")
	if err != nil {
		return nil, err
	}
	if port > 0xffff {
		return nil, fmt.Errorf("publish port out of range: %d", port)
	}
	id, err := readID(r)
	if err != nil {
		return nil, err
	}
	return &Publish{Topic: topic, PayloadKind: MessageKind(payload), Port: uint16(port), ID: id}, nil
}

// DecodePublish decodes a PUBLISH datagram.
func DecodePublish(b []byte) (*Publish, error) {
	return ReadPublish(bytes.NewReader(b))
}

// ReadRequest decodes a REQUEST message.
func ReadRequest(r io.Reader) (*Request, error) {
	if err := expectKind(r, KindRequest); err != nil {
		return nil, err
	}
	topic, err := readTopic(r)
	if err != nil {
		return nil, err
	}
	id, err := readID(r)
	if err != nil {
		return nil, err
	}
	return &Request{Topic: topic, ID: id}, nil
}

func readHashKind(r io.Reader) (HashKind, error) {
	b, err := readByte(r, "hash kind")
	if err != nil {
		return HashNone, err
	}
	return hashKindFromByte(b)
}

// ReadFileInfo decodes a FILE_INFO message.
func ReadFileInfo(r io.Reader) (*FileInfo, error) {
	if err := expectKind(r, KindFileInfo); err != nil {
		return nil, err
	}
	nameLen, err := readUint32(r, "name length")
	if err != nil {
		return nil, err
	}
	if nameLen > MaxNameLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrNameTooLong, nameLen)
	}
	name, err := readBytes(r, int(nameLen), "name")
	if err != nil {
		return nil, err
	}
	length, err := readUint64(r, "file length")
	if err != nil {
		return nil, err
	}
	h, err := readHashKind(r)
	if err != nil {
		return nil, err
	}
	digest, err := readBytes(r, h.Size(), "file digest")
	if err != nil {
		return nil, err
	}
	return &FileInfo{Name: string(name), FileLength: length, HashKind: h, Digest: digest}, nil
}

func readPayload(r io.Reader, what string) (uint32, []byte, error) {
	index, err := readUint32(r, what+" index")
	if err != nil {
		return 0, nil, err
	}
	n, err := readUint32(r, what+" length")
	if err != nil {
		return 0, nil, err
	}
	if n > MaxPieceSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrPieceTooLarge, n)
	}
	data, err := readBytes(r, int(n), what+" payload")
	if err != nil {
		return 0, nil, err
	}
	return index, data, nil
}

// ReadFilePiece decodes a FILE_PIECE message. The digest is not verified here, see FilePiece.Verify.
func ReadFilePiece(r io.Reader) (*FilePiece, error) {
	if err := expectKind(r, KindFilePiece); err != nil {
		return nil, err
	}
	index, data, err := readPayload(r, "piece")
	if err != nil {
		return nil, err
	}
	h, err := readHashKind(r)
	if err != nil {
		return nil, err
	}
	digest, err := readBytes(r, h.Size(), "piece digest")
	if err != nil {
		return nil, err
	}
	return &FilePiece{Index: index, Data: data, HashKind: h, Digest: digest}, nil
}

// ReadText decodes a TEXT message.
func ReadText(r io.Reader) (*Text, error) {
	if err := expectKind(r, KindText); err != nil {
		return nil, err
	}
	index, data, err := readPayload(r, "text")
	if err != nil {
		return nil, err
	}
	return &Text{Index: index, Data: data}, nil
}

// CheckIndex reports a desync between the received and the locally expected index.
func CheckIndex(got, want uint32) error {
	if got != want {
		return fmt.Errorf("%w: local %d, remote %d", ErrIndexMismatch, want, got)
	}
	return nil
}
