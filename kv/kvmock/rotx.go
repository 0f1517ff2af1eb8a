// Copyright 2024 The Searchcore Authors
// This file is part of Searchcore.
//
// Searchcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Searchcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Searchcore. If not, see <http://www.gnu.org/licenses/>.

// Package kvmock holds a go.uber.org/mock-style mock of kv.RoTx, hand-kept
// in the same shape `mockgen -source=kv/kv.go -destination=kv/kvmock/rotx.go`
// would produce, so tests can assert exact call sequences (e.g. "the
// executor issues exactly one ForPrefix against word_docids") instead of
// wiring a full in-memory fake for a single expectation.
package kvmock

import (
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/meilisearch/searchcore/kv"
)

// MockRoTx is a mock of the kv.RoTx interface.
type MockRoTx struct {
	ctrl     *gomock.Controller
	recorder *MockRoTxMockRecorder
}

// MockRoTxMockRecorder is the mock recorder for MockRoTx.
type MockRoTxMockRecorder struct {
	mock *MockRoTx
}

// NewMockRoTx creates a new mock instance.
func NewMockRoTx(ctrl *gomock.Controller) *MockRoTx {
	mock := &MockRoTx{ctrl: ctrl}
	mock.recorder = &MockRoTxMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockRoTx) EXPECT() *MockRoTxMockRecorder {
	return m.recorder
}

var _ kv.RoTx = (*MockRoTx)(nil)

// Get mocks base method.
func (m *MockRoTx) Get(table string, key []byte) ([]byte, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Get", table, key)
	ret0, _ := ret[0].([]byte)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Get indicates an expected call of Get.
func (mr *MockRoTxMockRecorder) Get(table, key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*MockRoTx)(nil).Get), table, key)
}

// Has mocks base method.
func (m *MockRoTx) Has(table string, key []byte) (bool, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Has", table, key)
	ret0, _ := ret[0].(bool)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Has indicates an expected call of Has.
func (mr *MockRoTxMockRecorder) Has(table, key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Has", reflect.TypeOf((*MockRoTx)(nil).Has), table, key)
}

// ForEach mocks base method.
func (m *MockRoTx) ForEach(table string, fromKey []byte, fn func([]byte, []byte) (bool, error)) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ForEach", table, fromKey, fn)
	ret0, _ := ret[0].(error)
	return ret0
}

// ForEach indicates an expected call of ForEach.
func (mr *MockRoTxMockRecorder) ForEach(table, fromKey, fn any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ForEach", reflect.TypeOf((*MockRoTx)(nil).ForEach), table, fromKey, fn)
}

// ForPrefix mocks base method.
func (m *MockRoTx) ForPrefix(table string, prefix []byte, fn func([]byte, []byte) (bool, error)) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "ForPrefix", table, prefix, fn)
	ret0, _ := ret[0].(error)
	return ret0
}

// ForPrefix indicates an expected call of ForPrefix.
func (mr *MockRoTxMockRecorder) ForPrefix(table, prefix, fn any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ForPrefix", reflect.TypeOf((*MockRoTx)(nil).ForPrefix), table, prefix, fn)
}

// Count mocks base method.
func (m *MockRoTx) Count(table string) (uint64, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Count", table)
	ret0, _ := ret[0].(uint64)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Count indicates an expected call of Count.
func (mr *MockRoTxMockRecorder) Count(table any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Count", reflect.TypeOf((*MockRoTx)(nil).Count), table)
}

// Rollback mocks base method.
func (m *MockRoTx) Rollback() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Rollback")
}

// Rollback indicates an expected call of Rollback.
func (mr *MockRoTxMockRecorder) Rollback() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Rollback", reflect.TypeOf((*MockRoTx)(nil).Rollback))
}
