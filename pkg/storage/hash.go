package storage

import (
	"fmt"
	"io"

	"tarun-kavipurapu/p2p-send/pkg/protocol"
)

// BufferSize is the read buffer used while hashing whole files.
const BufferSize = 1 << 16

// HashFile streams r through the hash h and returns the digest.
func HashFile(r io.Reader, h protocol.HashKind) ([]byte, error) {
	hasher := h.New()
	if hasher == nil {
		return nil, fmt.Errorf("%w: whole file hash can not be %s", protocol.ErrIncorrectHashKind, h)
	}
	buf := make([]byte, BufferSize)
	for {
		n, err := r.Read(buf)
		hasher.Write(buf[:n])
		if err == io.EOF {
			return hasher.Sum(nil), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
