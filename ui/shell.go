package ui

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"duochat/models"
	"duochat/network"
)

// Sender delivers messages into a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramShell implements session.Shell on top of a bubbletea program.
// Notifications become tea messages; decisions block until the user answers
// the prompt or the shell is closed.
type ProgramShell struct {
	downloadDir string
	logger      *log.Logger

	mu      sync.RWMutex
	program Sender

	done      chan struct{}
	closeOnce sync.Once
}

// NewProgramShell creates a shell saving downloads into downloadDir.
func NewProgramShell(downloadDir string, logger *log.Logger) *ProgramShell {
	if logger == nil {
		logger = log.Default()
	}
	return &ProgramShell{
		downloadDir: downloadDir,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Attach binds the shell to the program that renders it.
func (s *ProgramShell) Attach(program Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.program = program
}

// Close releases any goroutine waiting on a decision. Pending and later
// decisions answer no.
func (s *ProgramShell) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// OnMessage shows a sent or received message in the transcript.
func (s *ProgramShell) OnMessage(msg models.Message) {
	s.send(ChatMsg{Message: msg})
}

// OnConnectionClosed tells the user the peer went away.
func (s *ProgramShell) OnConnectionClosed(role network.Role) {
	s.send(ConnectionClosedMsg{Role: role})
}

// OnError shows err in the transcript.
func (s *ProgramShell) OnError(err error) {
	s.send(ErrorMsg{Err: err})
}

// OnShutdown marks the session as ended.
func (s *ProgramShell) OnShutdown() {
	s.send(ShutdownMsg{})
}

// RequestReconnectDecision asks whether the client should dial the server again.
func (s *ProgramShell) RequestReconnectDecision() bool {
	return s.ask("Server might be down. Reconnect?")
}

// RequestSendConfirmation asks whether fileName should be sent to the peer.
func (s *ProgramShell) RequestSendConfirmation(fileName string) bool {
	return s.ask(fmt.Sprintf("Send file %q?", fileName))
}

// RequestDownloadDecision asks whether received file fileRef should be saved.
func (s *ProgramShell) RequestDownloadDecision(fileRef int) bool {
	return s.ask(fmt.Sprintf("Save file #%d to %s?", fileRef, s.downloadDir))
}

// SaveDownloadedFile writes data into the download directory. Only the base
// name is used so a peer-chosen name cannot escape the directory.
func (s *ProgramShell) SaveDownloadedFile(name string, data []byte) (string, error) {
	base := filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", errors.New("invalid file name")
	}

	if err := os.MkdirAll(s.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	path := filepath.Join(s.downloadDir, base)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write downloaded file: %w", err)
	}
	return path, nil
}

func (s *ProgramShell) ask(question string) bool {
	reply := make(chan bool, 1)
	if !s.send(PromptMsg{Question: question, Reply: reply}) {
		return false
	}

	select {
	case answer := <-reply:
		return answer
	case <-s.done:
		return false
	}
}

func (s *ProgramShell) send(msg tea.Msg) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	s.mu.RLock()
	program := s.program
	s.mu.RUnlock()
	if program == nil {
		s.logger.Printf("ui: dropped %T, no program attached", msg)
		return false
	}

	program.Send(msg)
	return true
}
