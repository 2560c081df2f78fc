package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrianliechti/wingman-pilot/pkg/mcp/config"
	"github.com/adrianliechti/wingman-pilot/pkg/tool"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

var logger = xlog.NewPackageLogger("github.com/adrianliechti/wingman-pilot/pkg/mcp", "client")

// ErrConnection marks a server that could not be reached or did not
// complete the handshake.
var ErrConnection = errors.New("connection failed")

var errClosed = errors.New("connection closed")

const (
	ClientName    = "wingman-pilot"
	ClientVersion = "1.0.0"

	// EmptyResult is returned for calls that succeed without any content.
	EmptyResult = "Tool executed successfully"
)

type options struct {
	timeout time.Duration
}

type Option func(*options)

// WithTimeout bounds the handshake and the initial tool listing.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// Client is a live connection to one tool server.
type Client struct {
	name   string
	client *client.Client

	server       mcp.Implementation
	instructions string

	mu     sync.Mutex
	tools  []tool.Tool
	listed bool

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ tool.Provider = (*Client)(nil)

// Connect opens the transport described by s and completes the handshake.
// ctx bounds the lifetime of the transport, not only the handshake.
func Connect(ctx context.Context, s config.Server, opts ...Option) (*Client, error) {
	if s.Err != nil {
		return nil, errors.Mark(s.Err, ErrConnection)
	}

	c, err := newTransport(s)

	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "server %s", s.Name), ErrConnection)
	}

	return Dial(ctx, s.Name, c, opts...)
}

func newTransport(s config.Server) (*client.Client, error) {
	switch s.Type {
	case config.TypeStdio, "":
		env := []string{}

		for k, v := range s.Env {
			env = append(env, k+"="+v)
		}

		return client.NewClient(transport.NewStdio(s.Command, env, s.Args...)), nil

	case config.TypeSSE:
		return client.NewSSEMCPClient(s.URL, client.WithHeaders(s.Headers))

	case config.TypeHTTP:
		return client.NewStreamableHttpClient(s.URL, transport.WithHTTPHeaders(s.Headers))
	}

	return nil, errors.Newf("invalid server type %q", s.Type)
}

// Dial starts c, performs the initialize handshake and lists the server's
// tools once.
func Dial(ctx context.Context, name string, c *client.Client, opts ...Option) (*Client, error) {
	o := options{
		timeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(&o)
	}

	if err := c.Start(ctx); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "server %s: failed to start", name), ErrConnection)
	}

	result := &Client{
		name:   name,
		client: c,
	}

	hctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    ClientName,
		Version: ClientVersion,
	}

	resp, err := c.Initialize(hctx, req)

	if err != nil {
		result.Close()
		return nil, errors.Mark(errors.Wrapf(err, "server %s: handshake failed", name), ErrConnection)
	}

	result.server = resp.ServerInfo
	result.instructions = resp.Instructions

	if _, err := result.Tools(hctx); err != nil {
		result.Close()
		return nil, errors.Mark(errors.Wrapf(err, "server %s: failed to list tools", name), ErrConnection)
	}

	logger.KV(xlog.DEBUG,
		"status", "initialized",
		"provider", name,
		"server", resp.ServerInfo.Name,
		"version", resp.ServerInfo.Version,
		"protocol", resp.ProtocolVersion,
	)

	return result, nil
}

func (c *Client) Name() string {
	return c.name
}

// Server returns the name and version the server reported in the handshake.
func (c *Client) Server() mcp.Implementation {
	return c.server
}

// Instructions returns the usage hint the server sent in the handshake.
func (c *Client) Instructions() string {
	return c.instructions
}

// Tools lists the server's tools. The first successful listing is cached
// for the lifetime of the connection.
func (c *Client) Tools(ctx context.Context) ([]tool.Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listed {
		return append([]tool.Tool(nil), c.tools...), nil
	}

	if c.closed.Load() {
		return nil, errClosed
	}

	resp, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})

	if err != nil {
		return nil, err
	}

	var result []tool.Tool

	for _, t := range resp.Tools {
		schema, err := toSchema(t)

		if err != nil {
			return nil, errors.Wrapf(err, "tool %s: invalid input schema", t.Name)
		}

		result = append(result, tool.Tool{
			Name:        t.Name,
			Description: t.Description,

			Schema: schema,
		})
	}

	c.tools = result
	c.listed = true

	return append([]tool.Tool(nil), result...), nil
}

func toSchema(t mcp.Tool) (tool.Schema, error) {
	var schema tool.Schema

	if len(t.RawInputSchema) > 0 {
		if err := json.Unmarshal(t.RawInputSchema, &schema); err != nil {
			return nil, err
		}

		return schema, nil
	}

	if len(t.InputSchema.Properties) == 0 {
		return tool.EmptySchema(), nil
	}

	input, err := json.Marshal(t.InputSchema)

	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(input, &schema); err != nil {
		return nil, err
	}

	return schema, nil
}

// Call runs a tool and returns its text result. Failures reported by the
// server and transport failures are marked as tool.ErrToolInvocation.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.closed.Load() {
		return "", tool.InvocationError(errClosed, name)
	}

	if args == nil {
		args = map[string]any{}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.client.CallTool(ctx, req)

	if err != nil {
		return "", tool.InvocationError(err, name)
	}

	text := render(result.Content)

	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}

		return "", tool.InvocationError(errors.New(text), name)
	}

	if text == "" {
		return EmptyResult, nil
	}

	return text, nil
}

func render(contents []mcp.Content) string {
	var parts []string

	for _, content := range contents {
		switch content := content.(type) {
		case mcp.TextContent:
			parts = append(parts, strings.TrimSpace(content.Text))

		case mcp.ImageContent:
			parts = append(parts, "[image: "+content.MIMEType+"]")

		case mcp.AudioContent:
			parts = append(parts, "[audio: "+content.MIMEType+"]")

		case mcp.EmbeddedResource:
			switch r := content.Resource.(type) {
			case mcp.TextResourceContents:
				parts = append(parts, strings.TrimSpace(r.Text))
			case mcp.BlobResourceContents:
				parts = append(parts, "[resource: "+r.URI+"]")
			}
		}
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Close shuts the transport down. Only the first call has an effect.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.client.Close()
	})

	return c.closeErr
}
