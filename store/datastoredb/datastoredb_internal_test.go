package datastoredb

import (
	"context"
	"sort"
	"testing"

	"cloud.google.com/go/datastore"
	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const testKind = "goals"

var errUnauthenticated = errors.New("rpc error: code = Unauthenticated")

// fakeDatastore keeps entities of a single kind in memory. Calls fail with the errors queued for
// their method, in order
type fakeDatastore struct {
	entities      map[string]string
	failures      map[string][]error
	connectErrors []error
	connects      int
	closed        bool
}

func newFakeDatastore(entities map[string]string) *fakeDatastore {
	if entities == nil {
		entities = make(map[string]string)
	}

	return &fakeDatastore{entities: entities, failures: make(map[string][]error)}
}

func (f *fakeDatastore) failNext(method string, errs ...error) {
	f.failures[method] = append(f.failures[method], errs...)
}

func (f *fakeDatastore) nextFailure(method string) error {
	errs := f.failures[method]
	if len(errs) == 0 {
		return nil
	}

	f.failures[method] = errs[1:]
	return errs[0]
}

func (f *fakeDatastore) connect() (err error) {
	f.connects++
	if len(f.connectErrors) > 0 {
		err, f.connectErrors = f.connectErrors[0], f.connectErrors[1:]
	}

	return err
}

func (f *fakeDatastore) Close() (err error) {
	f.closed = true
	return nil
}

func (f *fakeDatastore) Delete(c context.Context, k *datastore.Key) (err error) {
	if err = f.nextFailure("Delete"); err != nil {
		return err
	}

	delete(f.entities, k.Name)
	return nil
}

func (f *fakeDatastore) Get(c context.Context, k *datastore.Key, dest interface{}) (err error) {
	if err = f.nextFailure("Get"); err != nil {
		return err
	}

	v, ok := f.entities[k.Name]
	if !ok {
		return datastore.ErrNoSuchEntity
	}

	dest.(*EntryValue).Value = v
	return nil
}

func (f *fakeDatastore) GetAll(c context.Context, query *datastore.Query, dest interface{}) (keys []*datastore.Key, err error) {
	if err = f.nextFailure("GetAll"); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(f.entities))
	for name := range f.entities {
		names = append(names, name)
	}
	sort.Strings(names)

	vals := dest.(*[]*EntryValue)
	for _, name := range names {
		keys = append(keys, datastore.NameKey(testKind, name, nil))
		*vals = append(*vals, &EntryValue{Value: f.entities[name]})
	}

	return keys, nil
}

func (f *fakeDatastore) Put(c context.Context, k *datastore.Key, v interface{}) (key *datastore.Key, err error) {
	if err = f.nextFailure("Put"); err != nil {
		return nil, err
	}

	f.entities[k.Name] = v.(*EntryValue).Value
	return k, nil
}

func TestNewFailsWhenConnectFails(t *testing.T) {
	fake := newFakeDatastore(nil)
	fake.connectErrors = []error{errors.New("invalid credentials")}

	_, err := newWithDatastorer(testKind, fake)
	assert.EqualError(t, err, "invalid credentials")
}

func TestNewClosesWhenTheConnectivityCheckFails(t *testing.T) {
	fake := newFakeDatastore(nil)
	fake.failNext("Get", errUnauthenticated)

	_, err := newWithDatastorer(testKind, fake)
	assert.EqualError(t, err, errUnauthenticated.Error())
	assert.True(t, fake.closed)
}

func TestStoreGoalsAndInteractions(t *testing.T) {
	fake := newFakeDatastore(nil)

	dsdb, err := newWithDatastorer(testKind, fake)
	require.NoError(t, err)

	require.NoError(t, dsdb.PutString("goals", `[{"id":1}]`))
	require.NoError(t, dsdb.PutString("interaction#2024-06-03T09:00:00Z", `{"userId":"U1"}`))

	v, err := dsdb.GetString("goals")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, v)

	require.NoError(t, dsdb.DeleteString("interaction#2024-06-03T09:00:00Z"))

	entries, err := dsdb.Scan()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"goals": `[{"id":1}]`}, entries)

	_, err = dsdb.GetString("interaction#2024-06-03T09:00:00Z")
	assert.True(t, store.IsNotFound(err))
	assert.Equal(t, 1, fake.connects)
}

func TestScanSkipsConnectivityKey(t *testing.T) {
	fake := newFakeDatastore(map[string]string{testKey: "ping", "goals": "[]"})

	dsdb, err := newWithDatastorer(testKind, fake)
	require.NoError(t, err)

	entries, err := dsdb.Scan()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"goals": "[]"}, entries)
}

var operations = map[string]struct {
	method string
	run    func(dsdb *DatastoreDB) error
}{
	"get": {method: "Get", run: func(dsdb *DatastoreDB) error {
		_, err := dsdb.GetString("goals")
		return err
	}},
	"scan": {method: "GetAll", run: func(dsdb *DatastoreDB) error {
		_, err := dsdb.Scan()
		return err
	}},
	"put": {method: "Put", run: func(dsdb *DatastoreDB) error {
		return dsdb.PutString("goals", "[]")
	}},
	"delete": {method: "Delete", run: func(dsdb *DatastoreDB) error {
		return dsdb.DeleteString("goals")
	}},
}

func TestOperationsRecoverAfterReconnect(t *testing.T) {
	for name, op := range operations {
		t.Run(name, func(t *testing.T) {
			fake := newFakeDatastore(map[string]string{"goals": "[]"})

			dsdb, err := newWithDatastorer(testKind, fake)
			require.NoError(t, err)

			fake.failNext(op.method, errUnauthenticated)

			assert.NoError(t, op.run(dsdb))
			assert.Equal(t, 2, fake.connects)
		})
	}
}

func TestOperationsFailWhenTheRetryFails(t *testing.T) {
	for name, op := range operations {
		t.Run(name, func(t *testing.T) {
			fake := newFakeDatastore(map[string]string{"goals": "[]"})

			dsdb, err := newWithDatastorer(testKind, fake)
			require.NoError(t, err)

			fake.failNext(op.method, errUnauthenticated, errUnauthenticated)

			assert.EqualError(t, op.run(dsdb), errUnauthenticated.Error())
			assert.Equal(t, 2, fake.connects)
		})
	}
}

func TestMissingEntityDoesNotReconnect(t *testing.T) {
	fake := newFakeDatastore(nil)

	dsdb, err := newWithDatastorer(testKind, fake)
	require.NoError(t, err)

	_, err = dsdb.GetString("missing")
	assert.EqualError(t, err, "key [missing]: not found")
	assert.True(t, store.IsNotFound(err))
	assert.Equal(t, 1, fake.connects)
}

func TestReconnectFailureIsReported(t *testing.T) {
	fake := newFakeDatastore(nil)

	dsdb, err := newWithDatastorer(testKind, fake)
	require.NoError(t, err)

	fake.failNext("Put", errors.New("rpc error: code = Unavailable"))
	fake.connectErrors = []error{errors.New("dial tcp: no route to host")}

	err = dsdb.PutString("goals", "[]")
	assert.EqualError(t, err, "reconnect after failure [rpc error: code = Unavailable]: dial tcp: no route to host")
}

func sumsByName(t *testing.T, reader *sdkmetric.ManualReader) (sums map[string]int64) {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums = make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	return sums
}

func TestDatastorerWithTelemetryCountsCallsAndErrors(t *testing.T) {
	fake := newFakeDatastore(nil)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	dsdb, err := newWithDatastorer(testKind, newDatastorerWithTelemetry(fake, testKind, mp.Meter("elonbot")))
	require.NoError(t, err)

	fake.failNext("Put", errUnauthenticated)
	require.NoError(t, dsdb.PutString("goals", "[]"))

	sums := sumsByName(t, reader)
	assert.Equal(t, int64(2), sums["datastorer_connect_Calls"])
	assert.Equal(t, int64(1), sums["datastorer_Get_Calls"])
	assert.Equal(t, int64(0), sums["datastorer_Get_Errors"])
	assert.Equal(t, int64(2), sums["datastorer_Put_Calls"])
	assert.Equal(t, int64(1), sums["datastorer_Put_Errors"])
}
