package ui

import (
	"duochat/models"
	"duochat/network"
)

// --- Bubbletea Messages ---

type (
	ChatMsg             struct{ Message models.Message }
	ConnectionClosedMsg struct{ Role network.Role }
	ErrorMsg            struct{ Err error }
	ShutdownMsg         struct{}
	InfoMsg             struct{ Info string }

	// PromptMsg asks the user a yes/no question. The answer goes to Reply,
	// which must be buffered.
	PromptMsg struct {
		Question string
		Reply    chan bool
	}
)
