package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadMessage_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Method: "spawn", Params: json.RawMessage(`{"name":"x"}`), ID: "1"}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	require.NoError(t, WriteMessage(&buf, data))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)

	var decoded Request
	require.NoError(t, json.Unmarshal(got, &decoded))
	assert.Equal(t, req.Method, decoded.Method)
	assert.Equal(t, req.ID, decoded.ID)
}

func TestReadMessage_RejectsZeroLength(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, 0)
	buf.Write(lenBuf)

	_, err := ReadMessage(&buf)
	assert.Error(t, err)
}

func TestReadMessage_RejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, maxMessageSize+1)
	buf.Write(lenBuf)

	_, err := ReadMessage(&buf)
	assert.Error(t, err)
}

func TestReadMessage_TruncatedPayloadErrors(t *testing.T) {
	var buf bytes.Buffer
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, 10)
	buf.Write(lenBuf)
	buf.WriteString("short")

	_, err := ReadMessage(&buf)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriteMessage_SingleWriteCallFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, []byte("hello")))

	lenPrefix := buf.Bytes()[:4]
	assert.Equal(t, uint32(5), binary.BigEndian.Uint32(lenPrefix))
	assert.Equal(t, "hello", string(buf.Bytes()[4:]))
}
