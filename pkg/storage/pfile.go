package storage

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"

	"tarun-kavipurapu/p2p-send/pkg/protocol"
)

var ErrInvalidPieceSize = errors.New("invalid piece size")

// PFile is a local file prepared for transfer: its whole file digest is computed
// once at construction and its contents are served as a sequence of pieces.
type PFile struct {
	name      string
	path      string
	fileHash  protocol.HashKind
	pieceHash protocol.HashKind
	pieceSize int
	length    int64
	digest    []byte
}

// NewPFile opens path to digest it. fileHash must not be HashNone, pieceHash may be.
func NewPFile(name, path string, fileHash, pieceHash protocol.HashKind, pieceSize int) (*PFile, error) {
	if fileHash == protocol.HashNone || !fileHash.Valid() {
		return nil, fmt.Errorf("%w: whole file hash can not be %s", protocol.ErrIncorrectHashKind, fileHash)
	}
	if !pieceHash.Valid() {
		return nil, fmt.Errorf("%w: %s", protocol.ErrIncorrectHashKind, pieceHash)
	}
	if pieceSize <= 0 || pieceSize > protocol.MaxPieceSize {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidPieceSize, pieceSize, protocol.MaxPieceSize)
	}
	if len(name) > protocol.MaxNameLength {
		return nil, fmt.Errorf("%w: %d bytes", protocol.ErrNameTooLong, len(name))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	digest, err := HashFile(file, fileHash)
	if err != nil {
		return nil, fmt.Errorf("failed to hash file: %w", err)
	}

	return &PFile{
		name:      name,
		path:      path,
		fileHash:  fileHash,
		pieceHash: pieceHash,
		pieceSize: pieceSize,
		length:    fileInfo.Size(),
		digest:    digest,
	}, nil
}

func (f *PFile) Name() string                 { return f.name }
func (f *PFile) Path() string                 { return f.path }
func (f *PFile) Length() int64                { return f.length }
func (f *PFile) PieceSize() int               { return f.pieceSize }
func (f *PFile) FileHash() protocol.HashKind  { return f.fileHash }
func (f *PFile) PieceHash() protocol.HashKind { return f.pieceHash }

// Digest returns a copy of the whole file digest.
func (f *PFile) Digest() []byte {
	return append([]byte(nil), f.digest...)
}

// NumPieces is ceil(length / pieceSize).
func (f *PFile) NumPieces() int64 {
	return (f.length + int64(f.pieceSize) - 1) / int64(f.pieceSize)
}

// FileInfo is the message announcing this file ahead of its pieces.
func (f *PFile) FileInfo() *protocol.FileInfo {
	return &protocol.FileInfo{
		Name:       f.name,
		FileLength: uint64(f.length),
		HashKind:   f.fileHash,
		Digest:     f.Digest(),
	}
}

// Pieces opens a fresh iterator over the file. Every call starts from index 0.
func (f *PFile) Pieces() (*PieceIterator, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return &PieceIterator{
		file:      file,
		pieceHash: f.pieceHash,
		pieceSize: f.pieceSize,
		remaining: f.length,
	}, nil
}

// PieceIterator yields the pieces of one file in index order.
//
//	it, _ := pfile.Pieces()
//	defer it.Close()
//	for it.Next() {
//	    send(it.Piece())
//	}
//	if err := it.Err(); err != nil { ... }
type PieceIterator struct {
	file      *os.File
	pieceHash protocol.HashKind
	pieceSize int
	index     uint32
	remaining int64
	piece     *protocol.FilePiece
	err       error
}

// Next reads the next piece. It returns false at the end of the file or on error,
// closing the underlying file in both cases.
func (it *PieceIterator) Next() bool {
	if it.err != nil || it.file == nil {
		return false
	}
	if it.remaining <= 0 {
		it.err = it.close()
		return false
	}

	n := it.pieceSize
	if it.remaining < int64(n) {
		n = int(it.remaining)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(it.file, data); err != nil {
		it.err = multierr.Append(fmt.Errorf("failed to read piece %d: %w", it.index, err), it.close())
		return false
	}

	it.piece = protocol.NewFilePiece(it.index, data, it.pieceHash)
	it.index++
	it.remaining -= int64(n)
	return true
}

// Piece is the piece produced by the last successful Next.
func (it *PieceIterator) Piece() *protocol.FilePiece {
	return it.piece
}

func (it *PieceIterator) Err() error {
	return it.err
}

// Close releases the file early, e.g. when the consumer is canceled.
func (it *PieceIterator) Close() error {
	return it.close()
}

func (it *PieceIterator) close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	return err
}
