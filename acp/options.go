package acp

// Config holds the settings a Client is built with. Use Options to
// adjust it; the zero value is not usable.
type Config struct {
	// BinaryPath is the agent executable name or path.
	BinaryPath string

	// BinaryArgs are the arguments before the --cwd flag.
	BinaryArgs []string

	// CWD is the working directory the agent operates in.
	CWD string

	// Env entries are appended to the inherited environment.
	Env map[string]string

	// McpServers are advertised when a session is created or loaded.
	McpServers []McpServerConfig

	// Guards are consulted before answering permission requests.
	Guards []GuardMatcher

	// StderrHandler receives each line of agent stderr.
	StderrHandler func(line []byte)

	// EventBufferSize is the per-turn message channel capacity.
	EventBufferSize int
}

func defaultConfig() Config {
	return Config{
		BinaryPath:      "opencode",
		BinaryArgs:      []string{"acp"},
		CWD:             ".",
		EventBufferSize: 64,
	}
}

// Option mutates a Config during NewClient.
type Option func(*Config)

// WithBinaryPath overrides the agent executable.
func WithBinaryPath(path string) Option {
	return func(c *Config) { c.BinaryPath = path }
}

// WithBinaryArgs overrides the arguments passed before --cwd.
func WithBinaryArgs(args ...string) Option {
	return func(c *Config) { c.BinaryArgs = args }
}

// WithCWD sets the agent working directory.
func WithCWD(cwd string) Option {
	return func(c *Config) { c.CWD = cwd }
}

// WithEnv appends environment variables for the agent process.
func WithEnv(env map[string]string) Option {
	return func(c *Config) { c.Env = env }
}

// WithMcpServers advertises MCP servers at session creation.
func WithMcpServers(servers ...McpServerConfig) Option {
	return func(c *Config) { c.McpServers = append(c.McpServers, servers...) }
}

// WithGuards installs permission guards.
func WithGuards(guards ...GuardMatcher) Option {
	return func(c *Config) { c.Guards = append(c.Guards, guards...) }
}

// WithStderrHandler receives agent stderr lines.
func WithStderrHandler(fn func(line []byte)) Option {
	return func(c *Config) { c.StderrHandler = fn }
}

// WithEventBufferSize sets the per-turn message channel capacity.
func WithEventBufferSize(n int) Option {
	return func(c *Config) { c.EventBufferSize = n }
}
