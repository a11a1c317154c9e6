package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"duochat/config"
	"duochat/discovery"
	"duochat/models"
	"duochat/network"
	"duochat/session"
	"duochat/storage"
	"duochat/ui"
)

const discoveryTimeout = 15 * time.Second

func main() {
	cfg, cfgPath, dataDir, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}

	role := flag.String("role", cfg.Role, "Session role: server or client")
	address := flag.String("address", cfg.PeerAddress, "Server host to connect to (client role)")
	port := flag.Int("port", cfg.Port, "TCP port to listen on or connect to")
	discover := flag.Bool("discover", cfg.Discovery, "Advertise (server) or find (client) the chat on the local network")
	flag.Parse()

	cfg.Role = config.NormalizeRole(*role)
	cfg.PeerAddress = *address
	cfg.Port = *port
	cfg.Discovery = *discover
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid settings: %v (config: %s)\n", err, cfgPath)
		os.Exit(2)
	}

	logFile, err := tea.LogToFile(config.LogPath(dataDir), "duochat ")
	if err != nil {
		log.Fatalf("startup failed while opening log file: %v", err)
	}
	defer logFile.Close()
	logger := log.Default()
	logger.Printf("main: starting instance=%s role=%s config=%s", cfg.InstanceID, cfg.Role, cfgPath)

	networkRole, err := network.ParseRole(cfg.Role)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	store, err := storage.Open()
	if err != nil {
		log.Fatalf("startup failed while opening file store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Printf("main: file store close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if networkRole == network.RoleClient && cfg.Discovery {
		fmt.Println("Looking for a chat server on the local network...")
		peer, err := findServer(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "discovery failed, using %s:%d: %v\n", cfg.PeerAddress, cfg.Port, err)
		} else {
			cfg.PeerAddress = discovery.DialHost(peer)
			cfg.Port = peer.Port
			fmt.Printf("Found %s at %s\n", peer.DisplayName, network.JoinHostPort(cfg.PeerAddress, cfg.Port))
		}
	}

	shell := ui.NewProgramShell(cfg.DownloadDir, logger)
	advertiser := &advertiserSlot{cfg: cfg, logger: logger}
	defer advertiser.stop()

	options := session.Options{
		Role:    networkRole,
		Address: cfg.PeerAddress,
		Port:    cfg.Port,
		Store:   store,
		Shell:   shell,
		Logger:  logger,
	}
	if networkRole == network.RoleServer && cfg.Discovery {
		options.OnListening = advertiser.start
	}

	controller, err := session.NewController(options)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	program := tea.NewProgram(ui.NewModel(controller, cfg.DisplayName), tea.WithAltScreen(), tea.WithContext(ctx))
	shell.Attach(program)

	runDone := make(chan error, 1)
	go func() {
		runDone <- controller.Run(ctx)
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		logger.Printf("main: ui exited with error: %v", err)
	}

	shell.Close()
	if err := controller.Close(); err != nil {
		logger.Printf("main: session close error: %v", err)
	}
	if err := <-runDone; err != nil {
		fmt.Fprintf(os.Stderr, "session ended: %v\n", err)
	}
	logger.Printf("main: stopped")
}

func findServer(ctx context.Context, cfg *config.AppConfig, logger *log.Logger) (models.Peer, error) {
	browser, err := discovery.NewBrowser(discovery.Config{
		InstanceID: cfg.InstanceID,
		Logger:     logger,
	})
	if err != nil {
		return models.Peer{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()
	return browser.FindServer(ctx)
}

// advertiserSlot keeps at most one mDNS advertisement alive, replacing it
// whenever the server binds again.
type advertiserSlot struct {
	cfg    *config.AppConfig
	logger *log.Logger

	mu      sync.Mutex
	current *discovery.Advertiser
}

func (a *advertiserSlot) start(addr net.Addr) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.current.Stop()
	a.current = nil

	advertiser, err := discovery.StartAdvertiser(discovery.Config{
		InstanceID:  a.cfg.InstanceID,
		DisplayName: a.cfg.DisplayName,
		Port:        tcpAddr.Port,
		Logger:      a.logger,
	})
	if err != nil {
		a.logger.Printf("main: discovery advertise failed: %v", err)
		return
	}
	a.current = advertiser
}

func (a *advertiserSlot) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current.Stop()
	a.current = nil
}
