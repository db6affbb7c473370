package datastoredb

import (
	"context"
	"io"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/option"
)

// gcdatastore wraps an actual google cloud datastore Client for real/production datastore interaction
type gcdatastore struct {
	*datastore.Client
	gcloudProjectID  string
	gcloudClientOpts []option.ClientOption
}

// connecter is implemented by any value that has a connect method
type connecter interface {
	connect() (err error)
}

// datastorer is implemented by any value that implements all of its methods. It is meant
// to allow easier testing decoupled from an actual datastore to interact with and
// the methods defined are method implemented by the datastore.Client that this package
// uses
type datastorer interface {
	connecter
	io.Closer
	Delete(c context.Context, k *datastore.Key) (err error)
	Get(c context.Context, k *datastore.Key, dest interface{}) (err error)
	GetAll(c context.Context, query *datastore.Query, dest interface{}) (keys []*datastore.Key, err error)
	Put(c context.Context, k *datastore.Key, v interface{}) (key *datastore.Key, err error)
}

// connect creates a new client instance from the initial gcloud project id and client options.
// Any previous client is closed first
func (ds *gcdatastore) connect() (err error) {
	if ds.Client != nil {
		ds.Client.Close()
	}

	ds.Client, err = datastore.NewClient(context.Background(), ds.gcloudProjectID, ds.gcloudClientOpts...)
	return err
}

// Close closes the underlying client, if connected
func (ds *gcdatastore) Close() (err error) {
	if ds.Client == nil {
		return nil
	}

	return ds.Client.Close()
}

// Delete deletes the entity for the given key. See https://godoc.org/cloud.google.com/go/datastore#Client.Delete
func (ds *gcdatastore) Delete(c context.Context, k *datastore.Key) (err error) {
	return ds.Client.Delete(c, k)
}

// Get loads the entity stored for key into dst. See https://godoc.org/cloud.google.com/go/datastore#Client.Get
func (ds *gcdatastore) Get(c context.Context, k *datastore.Key, dest interface{}) (err error) {
	return ds.Client.Get(c, k, dest)
}

// GetAll runs the provided query in the given context and returns all keys that match that query.
// See https://godoc.org/cloud.google.com/go/datastore#Client.GetAll
func (ds *gcdatastore) GetAll(c context.Context, query *datastore.Query, dest interface{}) (keys []*datastore.Key, err error) {
	return ds.Client.GetAll(c, query, dest)
}

// Put saves the entity src into the datastore with the given key. See https://godoc.org/cloud.google.com/go/datastore#Client.Put
func (ds *gcdatastore) Put(c context.Context, k *datastore.Key, v interface{}) (key *datastore.Key, err error) {
	return ds.Client.Put(c, k, v)
}
