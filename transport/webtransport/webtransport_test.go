package webtransport

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloud-shuttle/wsrpc/transport"
)

// frameReader exercises the reader's length-prefixed framing logic in
// isolation, without a real QUIC session: reader.Recv only ever touches
// its *bufio.Reader, so a plain in-memory buffer stands in for the wire.
func frameReader(buf *bytes.Buffer) *reader {
	return &reader{br: bufio.NewReader(buf)}
}

func writeFrame(buf *bytes.Buffer, payload []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)
}

func TestWebTransportReaderParsesLengthPrefixedFrames(t *testing.T) {
	buf := &bytes.Buffer{}
	writeFrame(buf, []byte("first"))
	writeFrame(buf, []byte("second"))

	r := frameReader(buf)

	m1, err := r.Recv(nil)
	require.NoError(t, err)
	assert.Equal(t, "first", string(m1.Data))
	assert.Equal(t, transport.Binary, m1.Kind)

	m2, err := r.Recv(nil)
	require.NoError(t, err)
	assert.Equal(t, "second", string(m2.Data))
}

func TestWebTransportReaderErrorsOnTruncatedFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 10)
	buf.Write(lenBuf[:])
	buf.Write([]byte("short")) // fewer than the 10 bytes promised

	r := frameReader(buf)
	_, err := r.Recv(nil)
	require.Error(t, err)
}

func TestDefaultStreamConfigIsReliableOrdered(t *testing.T) {
	cfg := DefaultStreamConfig()
	assert.Equal(t, Reliable, cfg.Reliability)
	assert.Equal(t, Ordered, cfg.Ordering)
	assert.Equal(t, CongestionDefault, cfg.Congestion)
}

func TestFillFullReadsAcrossShortReads(t *testing.T) {
	// iotest.OneByteReader makes every underlying Read return a single
	// byte, so bufio hands fillFull one byte per call and it must loop
	// until the whole buffer is filled.
	buf := &bytes.Buffer{}
	buf.WriteString("0123456789")
	br := bufio.NewReader(iotest.OneByteReader(buf))

	out := make([]byte, 10)
	n, err := fillFull(br, out)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "0123456789", string(out))
}
