package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/qidu/webot/internal/domain"
)

// FrameType identifies the kind of frame exchanged over the gateway socket.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the envelope exchanged with the gateway. Exactly one of the
// three wire shapes is populated depending on Type:
//
//	req:   ID, Method, Params
//	res:   ID, OK, Payload or Error
//	event: Event, Seq, Payload
type Frame struct {
	Type    FrameType           `json:"type"`
	ID      string              `json:"id,omitempty"`
	Method  string              `json:"method,omitempty"`
	Params  json.RawMessage     `json:"params,omitempty"`
	OK      bool                `json:"ok,omitempty"`
	Payload json.RawMessage     `json:"payload,omitempty"`
	Event   string              `json:"event,omitempty"`
	Seq     int                 `json:"seq,omitempty"`
	Error   *domain.RemoteError `json:"error,omitempty"`
}

// EncodeFrame serializes a frame to its wire form.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a wire message into a frame. A message that is not
// valid JSON, or whose type field is missing or unrecognized, fails with
// domain.ErrUnrecognizedFrame. Decode failures are non-fatal to the
// session: the caller drops the frame and continues reading.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", domain.ErrUnrecognizedFrame, err)
	}
	switch f.Type {
	case FrameTypeRequest, FrameTypeResponse, FrameTypeEvent:
		return f, nil
	default:
		return Frame{}, fmt.Errorf("%w: type %q", domain.ErrUnrecognizedFrame, f.Type)
	}
}
