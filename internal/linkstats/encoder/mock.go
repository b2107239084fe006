package encoder

import (
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/engine"
	"github.com/mh-dx/fpv-linkstats/internal/linkstats/messages"
	"github.com/stretchr/testify/mock"
)

type MockEncoderDecoder struct {
	mock.Mock
}

func (m *MockEncoderDecoder) EncodeRadioEvent(event messages.RadioEvent) ([]byte, error) {
	args := m.Called(event)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockEncoderDecoder) DecodeRadioEvent(data []byte) (messages.RadioEvent, error) {
	args := m.Called(data)
	return args.Get(0).(messages.RadioEvent), args.Error(1)
}

func (m *MockEncoderDecoder) EncodeSnapshot(snapshot *engine.Snapshot) ([]byte, error) {
	args := m.Called(snapshot)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockEncoderDecoder) DecodeSnapshot(data []byte) (*engine.Snapshot, error) {
	args := m.Called(data)
	return args.Get(0).(*engine.Snapshot), args.Error(1)
}

func (m *MockEncoderDecoder) EncodeControllerLinkSummary(summary messages.ControllerLinkSummary) ([]byte, error) {
	args := m.Called(summary)
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockEncoderDecoder) DecodeControllerLinkSummary(data []byte) (messages.ControllerLinkSummary, error) {
	args := m.Called(data)
	return args.Get(0).(messages.ControllerLinkSummary), args.Error(1)
}
