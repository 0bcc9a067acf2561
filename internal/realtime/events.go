package realtime

import "github.com/jutuon/afrodite-backend-sub001/internal/syncversion"

// EventKind tags the EventToClient union (SPEC_FULL.md §3).
type EventKind string

const (
	EventAccountStateChanged                 EventKind = "AccountStateChanged"
	EventAccountCapabilitiesChanged           EventKind = "AccountCapabilitiesChanged"
	EventNewMessageReceived                   EventKind = "NewMessageReceived"
	EventLikesChanged                         EventKind = "LikesChanged"
	EventReceivedBlocksChanged                EventKind = "ReceivedBlocksChanged"
	EventLatestViewedMessageChanged           EventKind = "LatestViewedMessageChanged"
	EventContentProcessingStateChanged        EventKind = "ContentProcessingStateChanged"
	EventNewsChanged                          EventKind = "NewsChanged"
	EventInitialContentModerationCompleted    EventKind = "InitialContentModerationCompleted"
)

// EventToClient is the single JSON shape sent over text frames. Only the
// fields relevant to Kind are populated; this mirrors the teacher's
// envelope-with-typed-payload pattern in internal/websocket/client.go's
// readPump switch, applied to outbound events instead.
type EventToClient struct {
	Kind            EventKind        `json:"kind"`
	Account         int64            `json:"account,omitempty"`
	Sender          int64            `json:"sender,omitempty"`
	ClientID        int64            `json:"client_id,omitempty"`
	SyncVersionKind syncversion.Kind `json:"sync_version_kind,omitempty"`
	SyncVersion     int64            `json:"sync_version,omitempty"`
}

// coalesceKey returns a non-empty key for event kinds that may be
// coalesced under backpressure (SPEC_FULL.md §4.8): only the latest of a
// given key is retained. Uncoalescable kinds (NewMessageReceived) return "".
func (e EventToClient) coalesceKey() string {
	switch e.Kind {
	case EventLikesChanged, EventReceivedBlocksChanged, EventAccountCapabilitiesChanged, EventNewsChanged:
		return string(e.Kind)
	default:
		return ""
	}
}
