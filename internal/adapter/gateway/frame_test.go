package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qidu/webot/internal/domain"
)

func TestDecodeFrameRequest(t *testing.T) {
	data := []byte(`{"type":"req","id":"r1","method":"chat.send","params":{"message":"hi"}}`)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "r1", frame.ID)
	assert.Equal(t, "chat.send", frame.Method)
	assert.JSONEq(t, `{"message":"hi"}`, string(frame.Params))
}

func TestDecodeFrameResponseError(t *testing.T) {
	data := []byte(`{"type":"res","id":"r2","ok":false,"error":{"code":7,"message":"nope"}}`)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeResponse, frame.Type)
	assert.False(t, frame.OK)
	require.NotNil(t, frame.Error)
	assert.Equal(t, 7, frame.Error.Code)
	assert.Equal(t, "nope", frame.Error.Message)
}

func TestDecodeFrameEventPreservesSeq(t *testing.T) {
	data := []byte(`{"type":"event","event":"chat","seq":42,"payload":{"state":"final"}}`)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, "chat", frame.Event)
	assert.Equal(t, 42, frame.Seq)
}

func TestDecodeFrameUnrecognized(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing type", `{"id":"x","method":"ping"}`},
		{"unknown type", `{"type":"push","id":"x"}`},
		{"not json", `{{{`},
		{"not an object", `"hello"`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.data))
			assert.ErrorIs(t, err, domain.ErrUnrecognizedFrame)
		})
	}
}

func TestEncodeFrameRoundtrip(t *testing.T) {
	in := Frame{
		Type:   FrameTypeRequest,
		ID:     "abc",
		Method: "chat.history",
		Params: json.RawMessage(`{"sessionKey":"s1","limit":50}`),
	}

	data, err := EncodeFrame(in)
	require.NoError(t, err)

	out, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Method, out.Method)
	assert.JSONEq(t, string(in.Params), string(out.Params))
}
