package goals

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/crypt"
	"github.com/rocketcrew/elonbot/store"
)

// GoalsKey is the key under which StorerPersister saves goals
const GoalsKey = "goals"

// StorerPersister persists goals as a single json document in a store.StringStorer. Goal
// descriptions and update texts are encrypted with the cipher
type StorerPersister struct {
	storer store.StringStorer
	cipher crypt.Cipher
}

// NewStorerPersister returns a StorerPersister. A nil cipher stores texts as is
func NewStorerPersister(storer store.StringStorer, cipher crypt.Cipher) *StorerPersister {
	if cipher == nil {
		cipher = crypt.Noop{}
	}

	return &StorerPersister{storer: storer, cipher: cipher}
}

// Load returns the persisted goals. A missing document means no goals
func (sp *StorerPersister) Load() (goals []Goal, err error) {
	raw, err := sp.storer.GetString(GoalsKey)
	if store.IsNotFound(err) {
		return []Goal{}, nil
	}

	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal([]byte(raw), &goals); err != nil {
		return nil, errors.Wrapf(err, "failed to decode [%s]", GoalsKey)
	}

	for i := range goals {
		if goals[i].Description, err = sp.cipher.Decrypt(goals[i].Description); err != nil {
			return nil, errors.Wrapf(err, "failed to decrypt description of goal [%d]", goals[i].ID)
		}

		for j := range goals[i].Updates {
			if goals[i].Updates[j].Text, err = sp.cipher.Decrypt(goals[i].Updates[j].Text); err != nil {
				return nil, errors.Wrapf(err, "failed to decrypt update of goal [%d]", goals[i].ID)
			}
		}
	}

	return goals, nil
}

// Save replaces the persisted goals
func (sp *StorerPersister) Save(goals []Goal) (err error) {
	encrypted := make([]Goal, len(goals))
	for i, g := range goals {
		encrypted[i] = g.copy()
		if encrypted[i].Description, err = sp.cipher.Encrypt(g.Description); err != nil {
			return errors.Wrapf(err, "failed to encrypt description of goal [%d]", g.ID)
		}

		for j := range encrypted[i].Updates {
			if encrypted[i].Updates[j].Text, err = sp.cipher.Encrypt(g.Updates[j].Text); err != nil {
				return errors.Wrapf(err, "failed to encrypt update of goal [%d]", g.ID)
			}
		}
	}

	b, err := json.Marshal(encrypted)
	if err != nil {
		return errors.Wrapf(err, "failed to encode [%s]", GoalsKey)
	}

	return sp.storer.PutString(GoalsKey, string(b))
}
