package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/adrianliechti/wingman-pilot/pkg/mcp/client"
	"github.com/adrianliechti/wingman-pilot/pkg/mcp/config"
	"github.com/adrianliechti/wingman-pilot/pkg/tool"

	"github.com/effective-security/xlog"
)

//go:generate mockgen -source=mcp.go -destination=../../mocks/mockmcp/mcp_mock.gen.go -package mockmcp

var logger = xlog.NewPackageLogger("github.com/adrianliechti/wingman-pilot/pkg", "mcp")

// ErrConnection marks a provider that could not be connected.
var ErrConnection = client.ErrConnection

// Connection is an open provider connection owned by the Manager.
type Connection interface {
	tool.Provider

	Close() error
}

// ConnectFunc opens a connection to one configured server.
type ConnectFunc func(ctx context.Context, s config.Server, timeout time.Duration) (Connection, error)

// Status reports the outcome of connecting one configured server.
type Status struct {
	Name  string
	Tools []string
	Err   error

	// Instructions is the usage hint the server sent in its handshake.
	Instructions string
}

type instructor interface {
	Instructions() string
}

type Manager struct {
	registry *tool.Registry

	connect ConnectFunc
	timeout time.Duration

	conns []Connection

	started  bool
	shutdown sync.Once
}

type Option func(*Manager)

func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

func WithConnector(connect ConnectFunc) Option {
	return func(m *Manager) {
		m.connect = connect
	}
}

func New(registry *tool.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,

		connect: Connect,
		timeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Connect opens a connection to s with mcp-go.
func Connect(ctx context.Context, s config.Server, timeout time.Duration) (Connection, error) {
	c, err := client.Connect(ctx, s, client.WithTimeout(timeout))

	if err != nil {
		return nil, err
	}

	return c, nil
}

func (m *Manager) Registry() *tool.Registry {
	return m.registry
}

// Connections returns the open connections in the order they were opened.
func (m *Manager) Connections() []Connection {
	return append([]Connection(nil), m.conns...)
}

// Startup connects to every server in order and registers their tools.
// A server that fails is logged, reported in its Status and skipped.
// ctx bounds the lifetime of the opened transports.
func (m *Manager) Startup(ctx context.Context, servers []config.Server) []Status {
	if m.started {
		logger.KV(xlog.WARNING, "status", "already_started")
		return nil
	}

	m.started = true

	var result []Status

	for _, s := range servers {
		status := Status{
			Name: s.Name,
		}

		conn, err := m.connect(ctx, s, m.timeout)

		if err != nil {
			logger.KV(xlog.WARNING,
				"status", "provider_connect_failed",
				"provider", s.Name,
				"err", err.Error(),
			)

			status.Err = err
			result = append(result, status)

			continue
		}

		m.conns = append(m.conns, conn)

		tools, err := conn.Tools(ctx)

		if err == nil {
			err = m.registry.Register(conn, tools)
		}

		if err != nil {
			logger.KV(xlog.WARNING,
				"status", "provider_register_failed",
				"provider", s.Name,
				"err", err.Error(),
			)

			status.Err = err
			result = append(result, status)

			continue
		}

		for _, t := range tools {
			status.Tools = append(status.Tools, t.Name)
		}

		if i, ok := conn.(instructor); ok {
			status.Instructions = i.Instructions()
		}

		logger.KV(xlog.INFO,
			"status", "provider_connected",
			"provider", s.Name,
			"tools", status.Tools,
		)

		result = append(result, status)
	}

	return result
}

// Shutdown closes every opened connection in reverse order. Close errors
// are logged and do not stop the remaining connections from closing.
// Only the first call has an effect.
func (m *Manager) Shutdown() {
	m.shutdown.Do(func() {
		for i := len(m.conns) - 1; i >= 0; i-- {
			conn := m.conns[i]

			if err := conn.Close(); err != nil {
				logger.KV(xlog.WARNING,
					"status", "provider_close_failed",
					"provider", conn.Name(),
					"err", err.Error(),
				)

				continue
			}

			logger.KV(xlog.DEBUG,
				"status", "provider_closed",
				"provider", conn.Name(),
			)
		}
	})
}
