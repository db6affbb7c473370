// Package store defines the key/value storage interfaces used by elonbot to persist goals and
// interactions along with its LevelDB implementation. The datastoredb and inmemorydb subpackages
// provide the Google Cloud Datastore and write-through cache implementations
package store

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned (possibly wrapped) when a key has no value
var ErrNotFound = errors.New("not found")

// StringStorer is implemented by any value that has the GetString, PutString, DeleteString, Scan and Close methods
type StringStorer interface {
	io.Closer
	StringGetter
	StringPutter
	StringDeleter
	Scanner
}

// BytesStorer is implemented by any value that has the Get, Put, Delete, Scan and Close methods
type BytesStorer interface {
	io.Closer
	Get(key []byte) (value []byte, err error)
	Put(key []byte, value []byte) (err error)
	Delete(key []byte) (err error)
	Scanner
}

// StringGetter is implemented by any value that has a GetString method
type StringGetter interface {
	GetString(key string) (value string, err error)
}

// StringPutter is implemented by any value that has a PutString method
type StringPutter interface {
	PutString(key string, value string) (err error)
}

// StringDeleter is implemented by any value that has a DeleteString method
type StringDeleter interface {
	DeleteString(key string) (err error)
}

// Scanner is implemented by any value that has a Scan method returning every key/value
type Scanner interface {
	Scan() (entries map[string]string, err error)
}

// PrefixScanner is implemented by storers able to scan a key range natively
type PrefixScanner interface {
	ScanPrefix(prefix string) (entries map[string]string, err error)
}

// IsNotFound returns true if err reports a missing key
func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}

// ScanPrefix returns the entries of s whose key starts with prefix
func ScanPrefix(s Scanner, prefix string) (entries map[string]string, err error) {
	if ps, ok := s.(PrefixScanner); ok {
		return ps.ScanPrefix(prefix)
	}

	all, err := s.Scan()
	if err != nil {
		return nil, err
	}

	entries = make(map[string]string)
	for k, v := range all {
		if strings.HasPrefix(k, prefix) {
			entries[k] = v
		}
	}

	return entries, nil
}
