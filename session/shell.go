package session

import (
	"duochat/models"
	"duochat/network"
)

// Shell is the user-facing side of a session. Notifications arrive on the
// read-loop goroutine in frame order; decision methods may block until the
// user answers.
type Shell interface {
	// OnMessage renders a transcript entry, sent or received.
	OnMessage(msg models.Message)
	// OnConnectionClosed reports that the peer is gone.
	OnConnectionClosed(role network.Role)
	// OnError surfaces a non-fatal failure such as a failed connect.
	OnError(err error)
	// OnShutdown tells the shell the session is over for good.
	OnShutdown()

	RequestReconnectDecision() bool
	RequestSendConfirmation(fileName string) bool
	RequestDownloadDecision(fileRef int) bool
	SaveDownloadedFile(name string, data []byte) (string, error)
}

// FileStore keeps the files received during a session.
type FileStore interface {
	Record(name string, data []byte) (int, error)
	Skip() int
	Lookup(id int) (models.ReceivedFile, error)
}
