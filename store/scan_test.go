package store_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/store"
	"github.com/rocketcrew/elonbot/store/mocks"
	"github.com/stretchr/testify/assert"
)

func TestScanPrefixFallsBackToFullScan(t *testing.T) {
	ms := mocks.Storer{}
	defer ms.AssertExpectations(t)

	ms.On("Scan").Return(map[string]string{"goals": "[]", "2024#a": "x", "2024#b": "y"}, nil)

	m, err := store.ScanPrefix(&ms, "2024")
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"2024#a": "x", "2024#b": "y"}, m)
}

func TestScanPrefixError(t *testing.T) {
	ms := mocks.Storer{}
	defer ms.AssertExpectations(t)

	ms.On("Scan").Return(map[string]string(nil), errors.New("disk on fire"))

	_, err := store.ScanPrefix(&ms, "2024")
	assert.EqualError(t, err, "disk on fire")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, store.IsNotFound(store.ErrNotFound))
	assert.True(t, store.IsNotFound(errors.Wrap(store.ErrNotFound, "key [goals]")))
	assert.False(t, store.IsNotFound(errors.New("not found but not really")))
	assert.False(t, store.IsNotFound(nil))
}
