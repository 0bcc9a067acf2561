package messagequeue

import (
	"context"
	"time"

	"github.com/gocql/gocql"
	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
	"github.com/jutuon/afrodite-backend-sub001/internal/interaction"
)

// EventEmitter lets C6 hand NewMessageReceived off to C9 without importing
// the event router package.
type EventEmitter interface {
	NewMessageReceived(ctx context.Context, receiver identity.InternalAccountID, sender identity.InternalAccountID, clientID int64)
}

// PendingMessage is one not-yet-acknowledged message, in delivery order.
type PendingMessage struct {
	Sender            identity.InternalAccountID
	ClientID          int64
	Payload           []byte
	SenderPublicKeyID int64
	Signature         []byte
	CreatedAt         time.Time
}

// Queue implements C6's Send/Receive/Ack.
type Queue struct {
	cluster      *Cluster
	interactions *interaction.Store
	events       EventEmitter
}

func NewQueue(cluster *Cluster, interactions *interaction.Store, events EventEmitter) *Queue {
	return &Queue{cluster: cluster, interactions: interactions, events: events}
}

// Send verifies the pair is Matched and unblocked, allocates the next
// client_id from the interaction row, persists the message via a logged
// batch across messages/user_inbox, and notifies the receiver through C9.
func (q *Queue) Send(ctx context.Context, sender, receiver identity.InternalAccountID, clientLocalID int64, payload []byte, senderPublicKeyID int64, signature []byte) (int64, time.Time, error) {
	matched, err := q.interactions.MatchOnlyRead(ctx, sender, receiver)
	if err != nil {
		return 0, time.Time{}, err
	}
	if !matched {
		return 0, time.Time{}, apierr.NotAllowed("accounts are not matched")
	}

	clientID, err := q.interactions.IncrementMessageCounter(ctx, sender, receiver)
	if err != nil {
		return 0, time.Time{}, err
	}

	now := time.Now()
	convID := conversationID(int64(sender), int64(receiver))

	batch := q.cluster.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(
		`INSERT INTO messages (conversation_id, client_id, sender_id, receiver_id, client_local_id, payload, sender_public_key_id, signature, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		convID, clientID, int64(sender), int64(receiver), clientLocalID, payload, senderPublicKeyID, signature, now,
	)
	batch.Query(
		`INSERT INTO user_inbox (receiver_id, sender_id, client_id, conversation_id, payload, sender_public_key_id, signature, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(receiver), int64(sender), clientID, convID, payload, senderPublicKeyID, signature, now,
	)
	if err := q.cluster.Session.ExecuteBatch(batch); err != nil {
		return 0, time.Time{}, apierr.Internal(err)
	}

	if q.events != nil {
		q.events.NewMessageReceived(ctx, receiver, sender, clientID)
	}

	return clientID, now, nil
}

// Receive returns all pending (not yet ack'd) messages for receiver, in
// (sender_internal_id, client_id) ascending order.
func (q *Queue) Receive(ctx context.Context, receiver identity.InternalAccountID) ([]PendingMessage, error) {
	iter := q.cluster.Session.Query(
		`SELECT sender_id, client_id, payload, sender_public_key_id, signature, created_at FROM user_inbox WHERE receiver_id = ?`,
		int64(receiver),
	).WithContext(ctx).Iter()

	var out []PendingMessage
	var senderID, clientID, pubKeyID int64
	var payload, signature []byte
	var createdAt time.Time
	for iter.Scan(&senderID, &clientID, &payload, &pubKeyID, &signature, &createdAt) {
		out = append(out, PendingMessage{
			Sender: identity.InternalAccountID(senderID), ClientID: clientID,
			Payload: payload, SenderPublicKeyID: pubKeyID, Signature: signature, CreatedAt: createdAt,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, apierr.Internal(err)
	}
	return out, nil
}

// MessageRef identifies one pending message for Ack.
type MessageRef struct {
	Sender   identity.InternalAccountID
	ClientID int64
}

// Ack deletes exactly the given messages from receiver's inbox; unknown ids
// are silently ignored (idempotent).
func (q *Queue) Ack(ctx context.Context, receiver identity.InternalAccountID, refs []MessageRef) error {
	for _, ref := range refs {
		err := q.cluster.Session.Query(
			`DELETE FROM user_inbox WHERE receiver_id = ? AND sender_id = ? AND client_id = ?`,
			int64(receiver), int64(ref.Sender), ref.ClientID,
		).WithContext(ctx).Exec()
		if err != nil {
			return apierr.Internal(err)
		}
	}
	return nil
}
