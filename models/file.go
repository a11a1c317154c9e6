package models

// ReceivedFile is a file received from the peer during this process's lifetime.
type ReceivedFile struct {
	ID         int    `json:"file_id"`
	Name       string `json:"filename"`
	Data       []byte `json:"-"`
	Size       int64  `json:"filesize"`
	Checksum   string `json:"checksum"`
	ReceivedAt int64  `json:"received_at"`
}
