// Package mcptools bridges external Model Context Protocol servers into an
// agent run: every tool the remote server lists becomes an action in one
// bridged namespace, so the model can call remote tools with the same tag
// syntax it uses for builtin actions.
package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/jikko/internal/ctxutil"
	"github.com/ashita-ai/jikko/internal/registry"
)

// defaultPayloadKey is the tool argument the invocation payload maps to
// when the config does not name one.
const defaultPayloadKey = "input"

// Config describes one MCP server connection. Exactly one of URL and
// Command must be set: URL uses the streamable HTTP transport, Command
// spawns a stdio server.
type Config struct {
	URL         string
	BearerToken string
	// Command is a stdio server command line, e.g. "npx my-mcp-server".
	Command string
	// PayloadKey is the tool argument that receives the invocation
	// payload; attributes map to same-named arguments directly.
	PayloadKey string
	Logger     *slog.Logger
}

// Bridge holds one connected MCP client and the namespace built from its
// tool list. Close it when the run ends.
type Bridge struct {
	client     *mcpclient.Client
	serverName string
	payloadKey string
	logger     *slog.Logger
}

// Connect dials the configured server, performs the Initialize handshake,
// and returns a ready bridge.
func Connect(ctx context.Context, cfg Config) (*Bridge, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PayloadKey == "" {
		cfg.PayloadKey = defaultPayloadKey
	}

	var (
		c   *mcpclient.Client
		err error
	)
	switch {
	case cfg.URL != "":
		var opts []mcptransport.StreamableHTTPCOption
		if cfg.BearerToken != "" {
			opts = append(opts, mcptransport.WithHTTPHeaders(map[string]string{
				"Authorization": "Bearer " + cfg.BearerToken,
			}))
		}
		c, err = mcpclient.NewStreamableHttpClient(cfg.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("mcptools: connect %s: %w", cfg.URL, err)
		}
	case cfg.Command != "":
		argv := strings.Fields(cfg.Command)
		if len(argv) == 0 {
			return nil, fmt.Errorf("mcptools: command %q has no executable", cfg.Command)
		}
		c, err = mcpclient.NewStdioMCPClient(argv[0], nil, argv[1:]...)
		if err != nil {
			return nil, fmt.Errorf("mcptools: spawn %q: %w", cfg.Command, err)
		}
	default:
		return nil, fmt.Errorf("mcptools: either a URL or a command is required")
	}

	initResult, err := c.Initialize(ctx, mcplib.InitializeRequest{
		Params: mcplib.InitializeParams{
			ClientInfo: mcplib.Implementation{Name: "jikko", Version: "0.1.0"},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcptools: initialize: %w", err)
	}

	cfg.Logger.Info("mcptools: connected",
		"server", initResult.ServerInfo.Name,
		"version", initResult.ServerInfo.Version)

	return &Bridge{
		client:     c,
		serverName: initResult.ServerInfo.Name,
		payloadKey: cfg.PayloadKey,
		logger:     cfg.Logger,
	}, nil
}

// ServerName returns the remote server's self-reported name.
func (b *Bridge) ServerName() string { return b.serverName }

// Namespace lists the server's tools and wraps each one as an action. The
// namespace is named mcp-{server} so bridged tools are recognizable in the
// prompt and the history.
func (b *Bridge) Namespace(ctx context.Context) (registry.Namespace, error) {
	toolsResult, err := b.client.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return registry.Namespace{}, fmt.Errorf("mcptools: list tools: %w", err)
	}

	ns := registry.Namespace{
		Name:        "mcp-" + b.serverName,
		Description: fmt.Sprintf("Tools provided by the %s MCP server.", b.serverName),
	}
	for _, tool := range toolsResult.Tools {
		ns.Actions = append(ns.Actions, &bridgedTool{
			bridge:      b,
			name:        tool.Name,
			description: tool.Description,
		})
	}

	b.logger.Info("mcptools: bridged namespace built",
		"namespace", ns.Name, "tools", len(ns.Actions))
	return ns, nil
}

// Close shuts the client connection down.
func (b *Bridge) Close() error {
	return b.client.Close()
}

// bridgedTool adapts one remote tool to the Action interface. Invocation
// attributes become same-named string arguments; the payload goes under the
// bridge's payload key.
type bridgedTool struct {
	bridge      *Bridge
	name        string
	description string
}

func (t *bridgedTool) Name() string { return t.name }

func (t *bridgedTool) Description() string { return t.description }

func (t *bridgedTool) ExamplePayload() *string { return nil }

func (t *bridgedTool) ExampleAttributes() map[string]string { return nil }

func (t *bridgedTool) Run(ctx context.Context, _ registry.RunState, attrs map[string]string, payload *string) (*string, error) {
	arguments := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		arguments[k] = v
	}
	if payload != nil {
		arguments[t.bridge.payloadKey] = *payload
	}

	t.bridge.logger.Debug("mcptools: calling tool",
		"tool", t.name,
		"run_id", ctxutil.RunIDFromContext(ctx),
		"step", ctxutil.StepFromContext(ctx))

	result, err := t.bridge.client.CallTool(ctx, mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      t.name,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mcptools: call %s: %w", t.name, err)
	}

	text := textContent(result.Content)
	if result.IsError {
		return nil, fmt.Errorf("mcptools: %s: %s", t.name, text)
	}
	if text == "" {
		return nil, nil
	}
	return &text, nil
}

// textContent joins the text parts of a tool result; non-text content is
// ignored, the loop can only feed text back into the prompt.
func textContent(contents []mcplib.Content) string {
	var parts []string
	for _, content := range contents {
		if tc, ok := content.(mcplib.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
