package particle

import (
	"reflect"

	"github.com/golang/mock/gomock"
)

// MockTranslator is a mock of Translator[string, string].
type MockTranslator struct {
	ctrl     *gomock.Controller
	recorder *MockTranslatorMockRecorder
}

// MockTranslatorMockRecorder is the mock recorder for MockTranslator.
type MockTranslatorMockRecorder struct {
	mock *MockTranslator
}

// NewMockTranslator creates a new mock instance.
func NewMockTranslator(ctrl *gomock.Controller) *MockTranslator {
	mock := &MockTranslator{ctrl: ctrl}
	mock.recorder = &MockTranslatorMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockTranslator) EXPECT() *MockTranslatorMockRecorder {
	return m.recorder
}

// Decode mocks base method.
func (m *MockTranslator) Decode(c *Codec) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Decode", c)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Decode indicates an expected call of Decode.
func (mr *MockTranslatorMockRecorder) Decode(c interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Decode", reflect.TypeOf((*MockTranslator)(nil).Decode), c)
}

// Encode mocks base method.
func (m *MockTranslator) Encode(msg string, c *Codec) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Encode", msg, c)
	ret0, _ := ret[0].(error)
	return ret0
}

// Encode indicates an expected call of Encode.
func (mr *MockTranslatorMockRecorder) Encode(msg, c interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Encode", reflect.TypeOf((*MockTranslator)(nil).Encode), msg, c)
}
