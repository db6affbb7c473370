// Package interactions persists the log of processed replies in a store.StringStorer. Each
// interaction is its own entry keyed by timestamp so the log can be listed and pruned by age
package interactions

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/crypt"
	"github.com/rocketcrew/elonbot/pipeline"
	"github.com/rocketcrew/elonbot/store"
)

const (
	// KeyPrefix prefixes the key of every interaction entry
	KeyPrefix = "interaction/"

	// fixed width so that keys sort chronologically
	keyTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Log is an append-only interaction log. The user name along with the inbound and outbound texts
// are encrypted with the cipher
type Log struct {
	storer store.StringStorer
	cipher crypt.Cipher
}

// New returns a Log writing to storer. A nil cipher stores texts as is
func New(storer store.StringStorer, cipher crypt.Cipher) *Log {
	if cipher == nil {
		cipher = crypt.Noop{}
	}

	return &Log{storer: storer, cipher: cipher}
}

// Append adds an interaction to the log
func (l *Log) Append(i pipeline.Interaction) (err error) {
	if i.UserName, err = l.cipher.Encrypt(i.UserName); err != nil {
		return errors.Wrap(err, "failed to encrypt user name")
	}

	if i.InboundMessage, err = l.cipher.Encrypt(i.InboundMessage); err != nil {
		return errors.Wrap(err, "failed to encrypt inbound message")
	}

	if i.OutboundReply, err = l.cipher.Encrypt(i.OutboundReply); err != nil {
		return errors.Wrap(err, "failed to encrypt outbound reply")
	}

	b, err := json.Marshal(i)
	if err != nil {
		return errors.Wrap(err, "failed to encode interaction")
	}

	key := KeyPrefix + i.Timestamp.UTC().Format(keyTimeLayout) + "#" + uuid.NewString()
	if err = l.storer.PutString(key, string(b)); err != nil {
		return errors.Wrapf(err, "failed to store interaction [%s]", key)
	}

	return nil
}

// List returns the interactions logged at or after since, oldest first
func (l *Log) List(since time.Time) (interactions []pipeline.Interaction, err error) {
	entries, err := store.ScanPrefix(l.storer, KeyPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan interactions")
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		if ts, ok := keyTime(k); ok && !ts.Before(since) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	interactions = make([]pipeline.Interaction, 0, len(keys))
	for _, k := range keys {
		i, err := l.decode(entries[k])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read interaction [%s]", k)
		}

		interactions = append(interactions, i)
	}

	return interactions, nil
}

// Prune deletes the interactions logged before the given time and returns how many were deleted
func (l *Log) Prune(before time.Time) (pruned int, err error) {
	entries, err := store.ScanPrefix(l.storer, KeyPrefix)
	if err != nil {
		return 0, errors.Wrap(err, "failed to scan interactions")
	}

	for k := range entries {
		if ts, ok := keyTime(k); ok && ts.Before(before) {
			if err = l.storer.DeleteString(k); err != nil {
				return pruned, errors.Wrapf(err, "failed to delete interaction [%s]", k)
			}
			pruned++
		}
	}

	return pruned, nil
}

func (l *Log) decode(raw string) (i pipeline.Interaction, err error) {
	if err = json.Unmarshal([]byte(raw), &i); err != nil {
		return i, err
	}

	if i.UserName, err = l.cipher.Decrypt(i.UserName); err != nil {
		return i, err
	}

	if i.InboundMessage, err = l.cipher.Decrypt(i.InboundMessage); err != nil {
		return i, err
	}

	i.OutboundReply, err = l.cipher.Decrypt(i.OutboundReply)

	return i, err
}

// keyTime extracts the timestamp of an interaction key
func keyTime(key string) (ts time.Time, ok bool) {
	rest := strings.TrimPrefix(key, KeyPrefix)
	sep := strings.Index(rest, "#")
	if sep < 0 {
		return ts, false
	}

	ts, err := time.Parse(keyTimeLayout, rest[:sep])

	return ts, err == nil
}
