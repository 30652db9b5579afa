package ajp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketLength(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    int
		wantErr error
	}{
		{"empty", nil, 0, nil},
		{"partial header", []byte{0x12, 0x34, 0x00}, 0, nil},
		{"bad first byte fails fast", []byte{'G'}, 0, ErrBadMagic},
		{"bad second byte", []byte{0x12, 0x00, 0x00, 0x01}, 0, ErrBadMagic},
		{"complete header", []byte{0x12, 0x34, 0x00, 0x05}, 9, nil},
		{"too large", []byte{0x12, 0x34, 0x20, 0x00}, 0, ErrPacketTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := packetLength(tt.data, magicIn0, magicIn1, DefaultPacketSize)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReaderStrings(t *testing.T) {
	w := &writer{}
	w.putString("hello")
	w.putNull()
	w.putString("")

	r := &reader{buf: w.buf}

	s, ok, err := r.readString()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	s, ok, err = r.readString()
	require.NoError(t, err)
	assert.False(t, ok, "0xFFFF is a null string")
	assert.Empty(t, s)

	s, ok, err = r.readString()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, s)

	assert.Zero(t, r.remaining())
}

func TestReaderTruncated(t *testing.T) {
	r := &reader{buf: []byte{0x00, 0x05, 'a', 'b'}}
	_, _, err := r.readString()
	assert.ErrorIs(t, err, ErrMalformed)

	r = &reader{buf: []byte{0x01}}
	_, err = r.readInt()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWriterFillsLength(t *testing.T) {
	w := &writer{}
	w.begin(magicOut0, magicOut1)
	w.putByte(prefixEndResponse)
	w.putBool(true)
	w.end()

	assert.Equal(t, []byte{'A', 'B', 0x00, 0x02, prefixEndResponse, 0x01}, w.buf)
}
