package models

// Message is one transcript entry handed to the UI.
//
// FileRef is set for file entries that arrived from the peer. It may point at
// an id with no stored file when the peer sent empty content.
type Message struct {
	IsReceived bool   `json:"is_received"`
	Text       string `json:"text"`
	IsFile     bool   `json:"is_file"`
	FileRef    *int   `json:"file_ref,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}
