package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMarshal(t *testing.T, p Packet) []byte {
	t.Helper()
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestPublishLayout(t *testing.T) {
	p := &Publish{Topic: "demo", PayloadKind: KindText, Port: 4242, ID: ID{1, 2, 3, 4}}
	b := mustMarshal(t, p)

	expected := []byte{byte(KindPublish), 4, 'd', 'e', 'm', 'o', byte(KindText), 0, 0, 0x10, 0x92, 1, 2, 3, 4}
	assert.Equal(t, expected, b)

	got, err := DecodePublish(b)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPublishPacketBounds(t *testing.T) {
	empty := mustMarshal(t, &Publish{PayloadKind: KindFilePiece})
	assert.Len(t, empty, MinPublishPacketSize)

	full := mustMarshal(t, &Publish{Topic: strings.Repeat("x", MaxTopicLength), PayloadKind: KindText})
	assert.LessOrEqual(t, len(full), MaxPublishPacketSize)

	_, err := (&Publish{Topic: strings.Repeat("x", MaxTopicLength+1)}).MarshalBinary()
	assert.ErrorIs(t, err, ErrTopicTooLong)
}

func TestDecodePublishErrors(t *testing.T) {
	good := mustMarshal(t, &Publish{Topic: "t", PayloadKind: KindText, Port: 1})

	bad := append([]byte{}, good...)
	bad[0] = byte(KindRequest)
	_, err := DecodePublish(bad)
	assert.ErrorIs(t, err, ErrIncorrectMessageKind)

	_, err = DecodePublish(good[:len(good)-1])
	assert.ErrorIs(t, err, ErrUnexpectedEndOfStream)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	payload := append([]byte{}, good...)
	payload[3] = byte(KindYes)
	_, err = DecodePublish(payload)
	assert.ErrorIs(t, err, ErrIncorrectMessageKind)
}

func TestRequestRoundTrip(t *testing.T) {
	r := &Request{Topic: "ämne", ID: ID{9, 8, 7, 6}}
	b := mustMarshal(t, r)
	assert.Equal(t, 1+1+len("ämne")+4, len(b))

	got, err := ReadRequest(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestFileInfoRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		hash HashKind
	}{
		{"none", HashNone},
		{"md5", HashMD5},
		{"sha1", HashSHA1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			digest := Digest(tc.hash, []byte("whole file"))
			require.Len(t, digest, tc.hash.Size())

			info := &FileInfo{Name: "dir/file.bin", FileLength: 1<<40 + 3, HashKind: tc.hash, Digest: digest}
			got, err := ReadFileInfo(bytes.NewReader(mustMarshal(t, info)))
			require.NoError(t, err)

			assert.Equal(t, info.Name, got.Name)
			assert.Equal(t, info.FileLength, got.FileLength)
			assert.Equal(t, info.HashKind, got.HashKind)
			assert.True(t, bytes.Equal(info.Digest, got.Digest))
			assert.Len(t, got.Digest, tc.hash.Size())
		})
	}
}

func TestFileInfoIncorrectHashKind(t *testing.T) {
	b := mustMarshal(t, &FileInfo{Name: "a", FileLength: 1, HashKind: HashNone})
	b[len(b)-1] = 9

	_, err := ReadFileInfo(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrIncorrectHashKind)
}

func TestFileInfoNameTooLong(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindFileInfo))
	binary.Write(&buf, binary.BigEndian, uint32(MaxNameLength+1))

	_, err := ReadFileInfo(&buf)
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestFilePieceLayout(t *testing.T) {
	p := NewFilePiece(3, []byte("abcd"), HashNone)
	b := mustMarshal(t, p)
	assert.Equal(t, []byte{byte(KindFilePiece), 0, 0, 0, 3, 0, 0, 0, 4, 'a', 'b', 'c', 'd', byte(HashNone)}, b)

	p = NewFilePiece(0, []byte("abcd"), HashMD5)
	b = mustMarshal(t, p)
	assert.Len(t, b, 1+4+4+4+1+16)

	got, err := ReadFilePiece(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.NoError(t, got.Verify())
}

func TestFilePieceDigestMismatch(t *testing.T) {
	b := mustMarshal(t, NewFilePiece(0, []byte("hello world"), HashSHA1))
	for i := 9; i < 9+len("hello world"); i++ {
		corrupt := append([]byte{}, b...)
		corrupt[i] ^= 0xff

		got, err := ReadFilePiece(bytes.NewReader(corrupt))
		require.NoError(t, err)
		assert.ErrorIs(t, got.Verify(), ErrDigestMismatch, "byte %d", i)
	}
}

func TestFilePieceTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindFilePiece))
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.BigEndian, uint32(MaxPieceSize+1))

	_, err := ReadFilePiece(&buf)
	assert.ErrorIs(t, err, ErrPieceTooLarge)

	_, err = (&Text{Data: make([]byte, MaxPieceSize+1)}).MarshalBinary()
	assert.ErrorIs(t, err, ErrPieceTooLarge)
}

func TestTextRoundTrip(t *testing.T) {
	txt := &Text{Index: 1, Data: []byte(" world")}
	b := mustMarshal(t, txt)
	assert.Equal(t, []byte{byte(KindText), 0, 0, 0, 1, 0, 0, 0, 6, ' ', 'w', 'o', 'r', 'l', 'd'}, b)

	got, err := ReadText(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, txt, got)

	_, err = ReadText(bytes.NewReader(b[:7]))
	assert.ErrorIs(t, err, ErrUnexpectedEndOfStream)
}

func TestSignals(t *testing.T) {
	for _, s := range []Signal{Yes, No, Done} {
		b := mustMarshal(t, s)
		assert.Equal(t, []byte{byte(s)}, b)
	}

	got, err := ReadSignal(bytes.NewReader([]byte{byte(KindNo)}), Yes, No)
	require.NoError(t, err)
	assert.Equal(t, No, got)

	_, err = ReadSignal(bytes.NewReader([]byte{byte(KindDone)}), Yes, No)
	assert.ErrorIs(t, err, ErrIncorrectMessageKind)

	_, err = ReadSignal(bytes.NewReader(nil), Yes, No)
	assert.ErrorIs(t, err, ErrUnexpectedEndOfStream)
}

func TestIsDone(t *testing.T) {
	text := mustMarshal(t, &Text{Data: []byte("x")})
	r := bufio.NewReader(bytes.NewReader(append(text, byte(KindDone))))

	done, err := IsDone(r)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = ReadText(r)
	require.NoError(t, err)

	done, err = IsDone(r)
	require.NoError(t, err)
	assert.True(t, done)

	_, err = IsDone(r)
	assert.True(t, errors.Is(err, ErrUnexpectedEndOfStream))
}

func TestCheckIndex(t *testing.T) {
	assert.NoError(t, CheckIndex(2, 2))
	assert.ErrorIs(t, CheckIndex(3, 2), ErrIndexMismatch)
}

func TestParseHashKind(t *testing.T) {
	for in, want := range map[string]HashKind{"SHA1": HashSHA1, "md5": HashMD5, "none": HashNone} {
		got, err := ParseHashKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseHashKind("sha256")
	assert.ErrorIs(t, err, ErrIncorrectHashKind)
}

func TestNewIDIsRandom(t *testing.T) {
	a, err := NewID()
	require.NoError(t, err)
	b, err := NewID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
