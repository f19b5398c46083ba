package walog

import (
	"context"

	"github.com/SharedCode/kvenv"
	"github.com/gocql/gocql"
)

// CassandraLogConfig configures a CassandraLog.
type CassandraLogConfig struct {
	Hosts    []string
	Keyspace string
	Table    string // defaults to "wal_records"
}

// CassandraLog is a distributed kvenv.Log backend for deployments that replicate the append-only
// stream across a Cassandra ring rather than a single host's filesystem. It has no true byte
// address: each append takes the next logical sequence number (a bigint clustering column) as its
// "address", exactly as the in-process logs use byte offsets — callers of the Log contract never
// look at an address's internal structure, only at ordering and equality (spec.md §6).
type CassandraLog struct {
	session *gocql.Session
	table   string

	// highSeq mirrors the next-sequence-to-assign so HighAddress doesn't require a read on every
	// call; it is refreshed from storage once at construction.
	highSeq int64
}

// OpenCassandraLog connects to the ring described by cfg and ensures its backing table exists.
func OpenCassandraLog(cfg CassandraLogConfig) (*CassandraLog, error) {
	table := cfg.Table
	if table == "" {
		table = "wal_records"
	}
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}

	createStmt := "CREATE TABLE IF NOT EXISTS " + table +
		" (shard int, seq bigint, payload blob, PRIMARY KEY (shard, seq))"
	if err := session.Query(createStmt).Exec(); err != nil {
		session.Close()
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}

	cl := &CassandraLog{session: session, table: table}
	if err := cl.loadHighSeq(); err != nil {
		session.Close()
		return nil, err
	}
	return cl, nil
}

const cassandraShard = 0

func (c *CassandraLog) loadHighSeq() error {
	var maxSeq int64 = -1
	iter := c.session.Query("SELECT seq FROM " + c.table + " WHERE shard = ?", cassandraShard).Iter()
	var seq int64
	for iter.Scan(&seq) {
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	if err := iter.Close(); err != nil {
		return kvenv.NewError(kvenv.FileIOError, err)
	}
	c.highSeq = maxSeq + 1
	return nil
}

func (c *CassandraLog) HighAddress() int64 { return c.highSeq }

func (c *CassandraLog) Append(ctx context.Context, records [][]byte) ([]int64, error) {
	addrs := make([]int64, len(records))
	batch := c.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for i, r := range records {
		seq := c.highSeq + int64(i)
		addrs[i] = seq
		batch.Query("INSERT INTO "+c.table+" (shard, seq, payload) VALUES (?, ?, ?)", cassandraShard, seq, r)
	}
	if err := c.session.ExecuteBatch(batch); err != nil {
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}
	c.highSeq += int64(len(records))
	return addrs, nil
}

func (c *CassandraLog) Get(ctx context.Context, address int64) ([]byte, error) {
	var payload []byte
	err := c.session.Query("SELECT payload FROM "+c.table+" WHERE shard = ? AND seq = ?", cassandraShard, address).
		WithContext(ctx).Scan(&payload)
	if err == gocql.ErrNotFound {
		return nil, kvenv.NewError(kvenv.Unknown, errRecordNotFound{address: address})
	}
	if err != nil {
		return nil, kvenv.NewError(kvenv.FileIOError, err)
	}
	return payload, nil
}

// SetHighAddress discards every record at or past address, used for post-failure rollback.
func (c *CassandraLog) SetHighAddress(ctx context.Context, address int64) error {
	if err := c.session.Query("DELETE FROM "+c.table+" WHERE shard = ? AND seq >= ?", cassandraShard, address).
		WithContext(ctx).Exec(); err != nil {
		return kvenv.NewError(kvenv.FileIOError, err)
	}
	c.highSeq = address
	return nil
}

func (c *CassandraLog) Clear(ctx context.Context) error {
	if err := c.session.Query("TRUNCATE " + c.table).WithContext(ctx).Exec(); err != nil {
		return kvenv.NewError(kvenv.FileIOError, err)
	}
	c.highSeq = 0
	return nil
}

func (c *CassandraLog) Close() error {
	c.session.Close()
	return nil
}

func (c *CassandraLog) CacheHitRate() float64 { return -1 }
