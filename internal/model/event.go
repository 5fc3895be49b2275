package model

// Event is one entry of the account event feed, as reported by the remote.
// The remote does not document a fixed Type vocabulary.
type Event struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type"`
	ICCID       string `json:"iccid,omitempty"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}
