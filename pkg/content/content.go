// Package content holds the payloads a topic can be published with: inline text
// or an ordered list of files.
package content

import (
	"errors"
	"fmt"

	"tarun-kavipurapu/p2p-send/pkg/protocol"
	"tarun-kavipurapu/p2p-send/pkg/storage"
)

var ErrNoFiles = errors.New("file content needs at least one file")

// Content is a publishable payload. Kind is the payload kind carried in announcements:
// protocol.KindText or protocol.KindFilePiece.
type Content interface {
	Kind() protocol.MessageKind
}

// Text is an inline UTF-8 payload sent as indexed TEXT pieces.
type Text struct {
	data      []byte
	pieceSize int
}

// NewText splits text into pieces of at most pieceSize bytes.
func NewText(text string, pieceSize int) (*Text, error) {
	if pieceSize <= 0 || pieceSize > protocol.MaxPieceSize {
		return nil, fmt.Errorf("%w: %d (max %d)", storage.ErrInvalidPieceSize, pieceSize, protocol.MaxPieceSize)
	}
	return &Text{data: []byte(text), pieceSize: pieceSize}, nil
}

func (t *Text) Kind() protocol.MessageKind { return protocol.KindText }

func (t *Text) Len() int { return len(t.data) }

// Pieces returns a fresh iterator starting at index 0.
func (t *Text) Pieces() *TextIterator {
	return &TextIterator{text: t}
}

// TextIterator yields the TEXT pieces of a Text in index order.
type TextIterator struct {
	text   *Text
	index  uint32
	offset int
	piece  *protocol.Text
}

func (it *TextIterator) Next() bool {
	if it.offset >= len(it.text.data) {
		return false
	}
	end := it.offset + it.text.pieceSize
	if end > len(it.text.data) {
		end = len(it.text.data)
	}
	it.piece = &protocol.Text{Index: it.index, Data: it.text.data[it.offset:end]}
	it.index++
	it.offset = end
	return true
}

func (it *TextIterator) Piece() *protocol.Text {
	return it.piece
}

// Entry names a local file and the name it is advertised under.
type Entry struct {
	Name string
	Path string
}

// Files is an ordered list of files sent one after another on a single connection.
type Files struct {
	files []*storage.PFile
}

// Options configure hashing and piece size when building Files.
type Options struct {
	FileHash  protocol.HashKind
	PieceHash protocol.HashKind
	PieceSize int
}

// DefaultOptions hash with SHA1 and use the maximum piece size.
func DefaultOptions() Options {
	return Options{
		FileHash:  protocol.DefaultHashKind,
		PieceHash: protocol.DefaultHashKind,
		PieceSize: protocol.DefaultPieceSize,
	}
}

// NewFiles digests every entry. It fails on the first file that can not be prepared.
func NewFiles(entries []Entry, opts Options) (*Files, error) {
	if len(entries) == 0 {
		return nil, ErrNoFiles
	}
	files := make([]*storage.PFile, 0, len(entries))
	for _, e := range entries {
		f, err := storage.NewPFile(e.Name, e.Path, opts.FileHash, opts.PieceHash, opts.PieceSize)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", e.Path, err)
		}
		files = append(files, f)
	}
	return &Files{files: files}, nil
}

func (f *Files) Kind() protocol.MessageKind { return protocol.KindFilePiece }

// Files returns the units in send order.
func (f *Files) Files() []*storage.PFile {
	return f.files
}

// TotalLength is the sum of all file lengths.
func (f *Files) TotalLength() int64 {
	var n int64
	for _, file := range f.files {
		n += file.Length()
	}
	return n
}
