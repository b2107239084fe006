package encoder

import (
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/engine"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/messages"
	"github.com/vmihailenco/msgpack"
)

// EncoderDecoder is the interface for encoding and decoding linkstats envelopes (using msgpack)
type EncoderDecoder interface {
	// EncodeRadioEvent encodes an event tap datagram
	EncodeRadioEvent(messages.RadioEvent) ([]byte, error)

	// DecodeRadioEvent decodes an event tap datagram
	DecodeRadioEvent([]byte) (messages.RadioEvent, error)

	// EncodeSnapshot encodes a published engine snapshot
	EncodeSnapshot(*engine.Snapshot) ([]byte, error)

	// DecodeSnapshot decodes a published engine snapshot
	DecodeSnapshot([]byte) (*engine.Snapshot, error)

	// EncodeControllerLinkSummary encodes the summary rebroadcast over the link
	EncodeControllerLinkSummary(messages.ControllerLinkSummary) ([]byte, error)

	// DecodeControllerLinkSummary decodes the summary rebroadcast over the link
	DecodeControllerLinkSummary([]byte) (messages.ControllerLinkSummary, error)
}

type encoderDecoder struct {
}

// NewEncoderDecoder creates a new encoder/decoder
func NewEncoderDecoder() EncoderDecoder {
	return &encoderDecoder{}
}

func (e *encoderDecoder) EncodeRadioEvent(event messages.RadioEvent) ([]byte, error) {
	return msgpack.Marshal(event)
}

func (e *encoderDecoder) DecodeRadioEvent(data []byte) (messages.RadioEvent, error) {
	var event messages.RadioEvent
	err := msgpack.Unmarshal(data, &event)
	if err != nil {
		return messages.RadioEvent{}, err
	}
	return event, nil
}

func (e *encoderDecoder) EncodeSnapshot(snapshot *engine.Snapshot) ([]byte, error) {
	return msgpack.Marshal(snapshot)
}

func (e *encoderDecoder) DecodeSnapshot(data []byte) (*engine.Snapshot, error) {
	snapshot := &engine.Snapshot{}
	err := msgpack.Unmarshal(data, snapshot)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (e *encoderDecoder) EncodeControllerLinkSummary(summary messages.ControllerLinkSummary) ([]byte, error) {
	return msgpack.Marshal(summary)
}

// DecodeControllerLinkSummary decodes the summary rebroadcast over the link
func (e *encoderDecoder) DecodeControllerLinkSummary(data []byte) (messages.ControllerLinkSummary, error) {
	var summary messages.ControllerLinkSummary
	err := msgpack.Unmarshal(data, &summary)
	if err != nil {
		return messages.ControllerLinkSummary{}, err
	}
	return summary, nil
}
