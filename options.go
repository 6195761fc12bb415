package opencode

import (
	"time"

	"github.com/agentwire/opencode-go/acp"
)

type config struct {
	cwd             string
	model           string
	providerID      string
	serverURL       string
	resume          string
	binaryPath      string
	binaryArgs      []string
	env             map[string]string
	mcpServers      []acp.McpServerConfig
	guards          []acp.GuardMatcher
	stderrHandler   func(line []byte)
	eventBufferSize int
	httpTimeout     time.Duration
}

func defaultClientConfig() config {
	return config{
		cwd:             ".",
		providerID:      "anthropic",
		eventBufferSize: 64,
		httpTimeout:     120 * time.Second,
	}
}

// Option configures a Client.
type Option func(*config)

// WithCWD sets the working directory the agent operates in. Only used
// by the subprocess backend.
func WithCWD(cwd string) Option {
	return func(c *config) { c.cwd = cwd }
}

// WithModel selects the model for HTTP-backed sessions.
func WithModel(modelID string) Option {
	return func(c *config) { c.model = modelID }
}

// WithProviderID selects the model provider for HTTP-backed sessions.
// Defaults to "anthropic".
func WithProviderID(providerID string) Option {
	return func(c *config) { c.providerID = providerID }
}

// WithServerURL switches the client to the HTTP backend, talking to a
// running agent server instead of spawning a subprocess.
func WithServerURL(url string) Option {
	return func(c *config) { c.serverURL = url }
}

// WithResume reconnects to an existing subprocess session by id
// instead of creating a fresh one.
func WithResume(sessionID string) Option {
	return func(c *config) { c.resume = sessionID }
}

// WithBinaryPath overrides the agent executable for the subprocess
// backend.
func WithBinaryPath(path string) Option {
	return func(c *config) { c.binaryPath = path }
}

// WithBinaryArgs overrides the agent's base arguments.
func WithBinaryArgs(args ...string) Option {
	return func(c *config) { c.binaryArgs = args }
}

// WithEnv appends environment variables for the agent subprocess.
func WithEnv(env map[string]string) Option {
	return func(c *config) { c.env = env }
}

// WithMCPServer advertises an MCP server to the agent under the given
// name.
func WithMCPServer(name string, server acp.McpServerConfig) Option {
	return func(c *config) {
		server.Name = name
		c.mcpServers = append(c.mcpServers, server)
	}
}

// WithToolServer registers a tool registry's MCP server under the
// given name. The command is spawned by the agent and serves the
// registry's tools.
func WithToolServer(name string, registry *ToolRegistry, command string, args ...string) Option {
	return func(c *config) {
		c.mcpServers = append(c.mcpServers, registry.ServerConfig(name, command, args...))
	}
}

// WithGuards installs permission guards for the subprocess backend.
func WithGuards(guards ...GuardMatcher) Option {
	return func(c *config) { c.guards = append(c.guards, guards...) }
}

// WithStderrHandler receives each line of agent subprocess stderr.
func WithStderrHandler(fn func(line []byte)) Option {
	return func(c *config) { c.stderrHandler = fn }
}

// WithEventBufferSize sets the per-turn message channel capacity.
func WithEventBufferSize(n int) Option {
	return func(c *config) { c.eventBufferSize = n }
}

// WithHTTPTimeout bounds each REST call of the HTTP backend.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *config) { c.httpTimeout = d }
}
