package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_duochat._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultVersion is the TXT record protocol version.
	DefaultVersion = 1
	// DefaultScanTimeout bounds each browse window.
	DefaultScanTimeout = 3 * time.Second
	// DefaultRetryInterval is the pause between empty scans in FindServer.
	DefaultRetryInterval = 2 * time.Second

	txtInstanceID = "instance_id"
	txtVersion    = "version"
	txtRole       = "role"
	serverRole    = "server"
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls advertiser and browser behavior.
type Config struct {
	Service       string
	Domain        string
	Version       int
	ScanTimeout   time.Duration
	RetryInterval time.Duration

	InstanceID  string
	DisplayName string
	Port        int

	Logger *log.Logger

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Version == 0 {
		out.Version = DefaultVersion
	}
	if out.ScanTimeout <= 0 {
		out.ScanTimeout = DefaultScanTimeout
	}
	if out.RetryInterval <= 0 {
		out.RetryInterval = DefaultRetryInterval
	}
	if out.Logger == nil {
		out.Logger = log.Default()
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validateForAdvertise() error {
	if strings.TrimSpace(c.InstanceID) == "" {
		return errors.New("instance ID is required")
	}
	if strings.TrimSpace(c.DisplayName) == "" {
		return errors.New("display name is required")
	}
	if c.Port <= 0 {
		return errors.New("port must be > 0")
	}
	return nil
}

// Advertiser announces a listening chat server via mDNS.
type Advertiser struct {
	server *zeroconf.Server
	logger *log.Logger
}

// StartAdvertiser registers the chat service for the configured port.
func StartAdvertiser(config Config) (*Advertiser, error) {
	cfg := config.withDefaults()
	if err := cfg.validateForAdvertise(); err != nil {
		return nil, err
	}

	txt := []string{
		txtInstanceID + "=" + cfg.InstanceID,
		txtVersion + "=" + strconv.Itoa(cfg.Version),
		txtRole + "=" + serverRole,
	}

	server, err := cfg.registerFn(cfg.DisplayName, cfg.Service, cfg.Domain, cfg.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	cfg.Logger.Printf("discovery: advertising service=%s name=%q port=%d", cfg.Service, cfg.DisplayName, cfg.Port)
	return &Advertiser{server: server, logger: cfg.Logger}, nil
}

// Stop withdraws the advertisement.
func (a *Advertiser) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.logger.Printf("discovery: advertising stopped")
}
