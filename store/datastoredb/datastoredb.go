package datastoredb

import (
	"context"

	"cloud.google.com/go/datastore"
	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/store"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/api/option"
)

const testKey = "testConnectivity"

// DatastoreDB implements the elonbot StringStorer interface. It maps
// the given name ("goals" or "interactions") to the datastore entity Kind
// to isolate the two kinds of records
type DatastoreDB struct {
	datastorer
	kind string
}

// EntryValue represents an entity/entry value mapped to a datastore key
type EntryValue struct {
	Value string `datastore:",noindex"`
}

// New returns a new instance of DatastoreDB for the given name (which maps to the datastore entity "Kind" and can
// be thought of as the namespace). This function also requires a gcloudProjectID as well as at least one option to provide gcloud client credentials
func New(name string, gcloudProjectID string, gcloudClientOpts ...option.ClientOption) (dsdb *DatastoreDB, err error) {
	gcd := gcdatastore{gcloudProjectID: gcloudProjectID, gcloudClientOpts: gcloudClientOpts}

	return newWithDatastorer(name, &gcd)
}

// NewWithTelemetry returns a DatastoreDB like New does but with every datastore call counted and timed
// on the given meter
func NewWithTelemetry(name string, meter metric.Meter, gcloudProjectID string, gcloudClientOpts ...option.ClientOption) (dsdb *DatastoreDB, err error) {
	gcd := gcdatastore{gcloudProjectID: gcloudProjectID, gcloudClientOpts: gcloudClientOpts}

	return newWithDatastorer(name, newDatastorerWithTelemetry(&gcd, name, meter))
}

// newWithDatastorer returns a new instance of DatastoreDB for the given name and datastorer
func newWithDatastorer(name string, datastorer datastorer) (dsdb *DatastoreDB, err error) {
	dsdb = new(DatastoreDB)
	dsdb.datastorer = datastorer
	dsdb.kind = name

	if err = dsdb.connect(); err != nil {
		return nil, err
	}

	if err = dsdb.testDB(); err != nil {
		dsdb.Close()
		return nil, err
	}

	return dsdb, nil
}

// testDB makes a lightweight call to the datastore to validate connectivity and credentials
func (dsdb *DatastoreDB) testDB() (err error) {
	var e EntryValue
	err = dsdb.Get(context.Background(), datastore.NameKey(dsdb.kind, testKey, nil), &e)

	if err != nil && err != datastore.ErrNoSuchEntity {
		return err
	}

	return nil
}

// retryOnceAfterReconnect runs f and, if it fails with anything but a missing entity, reconnects
// and runs it a second time. Clients can go stale after credential rotation and a fresh connection
// usually resolves it
func (dsdb *DatastoreDB) retryOnceAfterReconnect(f func() error) (err error) {
	err = f()
	if err == nil || err == datastore.ErrNoSuchEntity {
		return err
	}

	if cerr := dsdb.connect(); cerr != nil {
		return errors.Wrapf(cerr, "reconnect after failure [%s]", err.Error())
	}

	return f()
}

// GetString returns the value associated to a given key. If the value is not
// found, an error wrapping store.ErrNotFound is returned
func (dsdb *DatastoreDB) GetString(key string) (value string, err error) {
	ctx := context.Background()
	k := datastore.NameKey(dsdb.kind, key, nil)

	var e EntryValue
	err = dsdb.retryOnceAfterReconnect(func() error {
		return dsdb.Get(ctx, k, &e)
	})

	if err == datastore.ErrNoSuchEntity {
		return "", errors.Wrapf(store.ErrNotFound, "key [%s]", key)
	} else if err != nil {
		return "", err
	}

	return e.Value, nil
}

// PutString stores the key/value to the database
func (dsdb *DatastoreDB) PutString(key string, value string) (err error) {
	ctx := context.Background()
	k := datastore.NameKey(dsdb.kind, key, nil)

	return dsdb.retryOnceAfterReconnect(func() error {
		_, err := dsdb.Put(ctx, k, &EntryValue{Value: value})
		return err
	})
}

// DeleteString deletes the entry for the given key
func (dsdb *DatastoreDB) DeleteString(key string) (err error) {
	ctx := context.Background()
	k := datastore.NameKey(dsdb.kind, key, nil)

	return dsdb.retryOnceAfterReconnect(func() error {
		return dsdb.Delete(ctx, k)
	})
}

// Scan returns all key/values from the database
func (dsdb *DatastoreDB) Scan() (entries map[string]string, err error) {
	entries = make(map[string]string)
	ctx := context.Background()

	var keys []*datastore.Key
	var vals []*EntryValue
	err = dsdb.retryOnceAfterReconnect(func() (err error) {
		vals = nil
		keys, err = dsdb.GetAll(ctx, datastore.NewQuery(dsdb.kind), &vals)
		return err
	})

	if err != nil {
		return nil, err
	}

	for i, key := range keys {
		if key.Name == testKey {
			continue
		}

		entries[key.Name] = vals[i].Value
	}

	return entries, nil
}

// Close closes the underlying datastore client
func (dsdb *DatastoreDB) Close() (err error) {
	return dsdb.datastorer.Close()
}
