package radioinfo

import (
	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) InterfaceCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockProvider) LinkCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockProvider) Interface(index int) (Info, bool) {
	args := m.Called(index)
	return args.Get(0).(Info), args.Bool(1)
}
