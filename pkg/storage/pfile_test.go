package storage

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarun-kavipurapu/p2p-send/pkg/protocol"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func collect(t *testing.T, f *PFile) []*protocol.FilePiece {
	t.Helper()
	it, err := f.Pieces()
	require.NoError(t, err)
	defer it.Close()

	var pieces []*protocol.FilePiece
	for it.Next() {
		pieces = append(pieces, it.Piece())
	}
	require.NoError(t, it.Err())
	return pieces
}

func TestPieceSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := []struct {
		length    int
		pieceSize int
	}{
		{0, 4},
		{1, 4},
		{10, 4},
		{12, 4},
		{100000, protocol.MaxPieceSize},
		{protocol.MaxPieceSize * 2, protocol.MaxPieceSize},
		{777, 1},
	}

	for _, tc := range cases {
		data := make([]byte, tc.length)
		rng.Read(data)
		f, err := NewPFile("data.bin", writeTemp(t, data), protocol.HashSHA1, protocol.HashMD5, tc.pieceSize)
		require.NoError(t, err)

		pieces := collect(t, f)
		want := (tc.length + tc.pieceSize - 1) / tc.pieceSize
		require.Len(t, pieces, want, "length=%d pieceSize=%d", tc.length, tc.pieceSize)
		assert.Equal(t, int64(want), f.NumPieces())

		var joined bytes.Buffer
		for i, p := range pieces {
			assert.Equal(t, uint32(i), p.Index)
			assert.NoError(t, p.Verify())
			joined.Write(p.Data)
		}
		assert.True(t, bytes.Equal(data, joined.Bytes()))

		if want > 0 {
			assert.Len(t, pieces[want-1].Data, tc.length-tc.pieceSize*(want-1))
		}
	}
}

func TestPiecesRestartPerCall(t *testing.T) {
	f, err := NewPFile("x", writeTemp(t, []byte("0123456789")), protocol.HashMD5, protocol.HashNone, 4)
	require.NoError(t, err)

	first := collect(t, f)
	second := collect(t, f)
	require.Len(t, first, 3)
	assert.Equal(t, first, second)

	lengths := []int{len(first[0].Data), len(first[1].Data), len(first[2].Data)}
	assert.Equal(t, []int{4, 4, 2}, lengths)
	assert.Nil(t, first[0].Digest)
}

func TestIteratorCloseEarly(t *testing.T) {
	f, err := NewPFile("x", writeTemp(t, []byte("0123456789")), protocol.HashSHA1, protocol.HashNone, 4)
	require.NoError(t, err)

	it, err := f.Pieces()
	require.NoError(t, err)
	require.True(t, it.Next())
	require.NoError(t, it.Close())
	assert.False(t, it.Next())
	assert.NoError(t, it.Close())
}

func TestFileDigestAndInfo(t *testing.T) {
	data := []byte("the whole file")
	path := writeTemp(t, data)

	f, err := NewPFile("dir/name.txt", path, protocol.HashSHA1, protocol.HashNone, 4)
	require.NoError(t, err)
	sum := sha1.Sum(data)
	assert.Equal(t, sum[:], f.Digest())

	info := f.FileInfo()
	assert.Equal(t, "dir/name.txt", info.Name)
	assert.Equal(t, uint64(len(data)), info.FileLength)
	assert.Equal(t, protocol.HashSHA1, info.HashKind)

	f, err = NewPFile("n", path, protocol.HashMD5, protocol.HashNone, 4)
	require.NoError(t, err)
	md := md5.Sum(data)
	assert.Equal(t, md[:], f.Digest())
}

func TestNewPFileValidation(t *testing.T) {
	path := writeTemp(t, []byte("abc"))

	_, err := NewPFile("n", path, protocol.HashNone, protocol.HashNone, 4)
	assert.ErrorIs(t, err, protocol.ErrIncorrectHashKind)

	_, err = NewPFile("n", path, protocol.HashSHA1, protocol.HashNone, 0)
	assert.ErrorIs(t, err, ErrInvalidPieceSize)

	_, err = NewPFile("n", path, protocol.HashSHA1, protocol.HashNone, protocol.MaxPieceSize+1)
	assert.ErrorIs(t, err, ErrInvalidPieceSize)

	_, err = NewPFile("n", filepath.Join(t.TempDir(), "missing"), protocol.HashSHA1, protocol.HashNone, 4)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewPFile("n", t.TempDir(), protocol.HashSHA1, protocol.HashNone, 4)
	assert.Error(t, err)
}

func TestHashFileLargerThanBuffer(t *testing.T) {
	data := bytes.Repeat([]byte{0xab}, BufferSize*3+17)
	got, err := HashFile(bytes.NewReader(data), protocol.HashSHA1)
	require.NoError(t, err)
	sum := sha1.Sum(data)
	assert.Equal(t, sum[:], got)

	_, err = HashFile(bytes.NewReader(data), protocol.HashNone)
	assert.ErrorIs(t, err, protocol.ErrIncorrectHashKind)
}
