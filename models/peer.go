package models

// Peer is a chat server found on the local network.
type Peer struct {
	InstanceID  string   `json:"instance_id"`
	DisplayName string   `json:"display_name"`
	HostName    string   `json:"host_name"`
	Port        int      `json:"port"`
	Addresses   []string `json:"addresses"`
	LastSeen    int64    `json:"last_seen"`
}
