package domain

import "time"

// Snapshot is the persisted form of a proxy's demand state: what the user
// explicitly materialized and what is selected. Shadow nodes themselves are
// never persisted; they are rebuilt from this on restore.
type Snapshot struct {
	ProxyID   string    `json:"proxy_id"`
	Requested []Path    `json:"requested,omitempty"`
	Subtrees  []Path    `json:"subtrees,omitempty"`
	Selected  []Path    `json:"selected,omitempty"`
	SavedAt   time.Time `json:"saved_at"`

	// Sealed carries the encrypted demand state when the snapshot went
	// through an encrypting store. The plain fields are empty then.
	Sealed string `json:"sealed,omitempty"`
}
