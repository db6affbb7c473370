// Package mocks contains a mock of the store package interfaces
package mocks

import (
	"github.com/stretchr/testify/mock"
)

// Storer holds a mock implementation of StringStorer
type Storer struct {
	mock.Mock
}

// GetString mocks an implementation of GetString
func (ms *Storer) GetString(key string) (value string, err error) {
	args := ms.Called(key)

	return args.String(0), args.Error(1)
}

// PutString mocks an implementation of PutString
func (ms *Storer) PutString(key string, value string) (err error) {
	args := ms.Called(key, value)

	return args.Error(0)
}

// DeleteString mocks an implementation of DeleteString
func (ms *Storer) DeleteString(key string) (err error) {
	args := ms.Called(key)

	return args.Error(0)
}

// Scan mocks an implementation of Scan
func (ms *Storer) Scan() (entries map[string]string, err error) {
	args := ms.Called()

	return args.Get(0).(map[string]string), args.Error(1)
}

// Close mocks an implementation of Close
func (ms *Storer) Close() (err error) {
	args := ms.Called()

	return args.Error(0)
}
