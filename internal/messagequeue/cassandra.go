// Package messagequeue implements C6: the pairwise, at-least-once message
// queue persisted in Cassandra (SPEC_FULL.md §4.6), grounded in the
// teacher's internal/db/cassandra.go connection/schema bootstrap and
// internal/repositories/message_cassandra_repo.go's batch-write pattern.
package messagequeue

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gocql/gocql"
)

// Cluster wraps a gocql.Session with the teacher's startup-retry and
// auto-keyspace/table-creation behavior.
type Cluster struct {
	Session *gocql.Session
}

// Connect retries the initial connection (Cassandra is frequently still
// starting up when this service boots) and creates the keyspace/tables on
// first run, exactly as internal/db/cassandra.go does for messaging-app.
func Connect(hosts []string, keyspace, username, password string) (*Cluster, error) {
	var session *gocql.Session
	var err error

	for i := 0; i < 20; i++ {
		cluster := gocql.NewCluster(hosts...)
		cluster.Keyspace = keyspace
		cluster.Consistency = gocql.Quorum
		cluster.ProtoVersion = 4
		cluster.ConnectTimeout = 10 * time.Second
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: username, Password: password}
		cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 3}

		session, err = cluster.CreateSession()
		if err == nil {
			slog.Info("connected to cassandra")
			break
		}

		cluster.Keyspace = ""
		sysSession, sysErr := cluster.CreateSession()
		if sysErr == nil {
			slog.Info("creating cassandra keyspace", "keyspace", keyspace)
			if err := createKeyspace(sysSession, keyspace); err != nil {
				slog.Error("failed to create keyspace", "error", err)
			}
			sysSession.Close()
		} else {
			slog.Warn("cassandra connection attempt failed", "attempt", i+1, "error", err)
		}

		time.Sleep(3 * time.Second)
	}

	if err != nil {
		return nil, err
	}

	if err := createTables(session); err != nil {
		session.Close()
		return nil, err
	}

	return &Cluster{Session: session}, nil
}

func createKeyspace(session *gocql.Session, keyspace string) error {
	query := `CREATE KEYSPACE IF NOT EXISTS ` + keyspace + ` WITH replication = {
		'class': 'SimpleStrategy',
		'replication_factor': 1
	};`
	return session.Query(query).Exec()
}

// createTables lays out the queue's two tables. Unlike the teacher's
// conversation_id + TimeUUID design (global per-conversation ordering by
// wall-clock), client_id is the Mongo-allocated strictly-monotonic
// clustering column per SPEC_FULL.md §4.6 — conversation_id survives only
// as the internal partition key.
func createTables(session *gocql.Session) error {
	messagesQuery := `CREATE TABLE IF NOT EXISTS messages (
		conversation_id text,
		client_id bigint,
		sender_id bigint,
		receiver_id bigint,
		client_local_id bigint,
		payload blob,
		sender_public_key_id bigint,
		signature blob,
		created_at timestamp,
		PRIMARY KEY ((conversation_id), client_id)
	) WITH CLUSTERING ORDER BY (client_id ASC);`
	if err := session.Query(messagesQuery).Exec(); err != nil {
		return err
	}

	inboxQuery := `CREATE TABLE IF NOT EXISTS user_inbox (
		receiver_id bigint,
		sender_id bigint,
		client_id bigint,
		conversation_id text,
		payload blob,
		sender_public_key_id bigint,
		signature blob,
		created_at timestamp,
		PRIMARY KEY ((receiver_id), sender_id, client_id)
	) WITH CLUSTERING ORDER BY (sender_id ASC, client_id ASC);`
	return session.Query(inboxQuery).Exec()
}

func (c *Cluster) Close() {
	if c.Session != nil {
		c.Session.Close()
	}
}

// conversationID reproduces the teacher's canonicalized DM key
// ("dm_"+lower+"_"+higher), used purely as the Cassandra partition key.
func conversationID(a, b int64) string {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return "dm_" + strconv.FormatInt(lo, 10) + "_" + strconv.FormatInt(hi, 10)
}
