package config

import (
	"Go2Mgen/internal/responder"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GeneratorConfig describes the generator instance a session controls.
type GeneratorConfig struct {
	Binary         string        `yaml:"binary"`
	Instance       string        `yaml:"instance"`
	GPSKey         string        `yaml:"gps_key"`
	SocketDir      string        `yaml:"socket_dir"`
	PipeDir        string        `yaml:"pipe_dir"`
	SinkCommand    string        `yaml:"sink_command"`
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

// NATSConfig holds the event bus settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConfig holds the event recorder settings.
type ClickHouseConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Database      string        `yaml:"database"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	Table         string        `yaml:"table"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// ArchiveConfig holds the event archive settings.
type ArchiveConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	Encoding   string `yaml:"encoding"`
	BufferSize int    `yaml:"buffer_size"`
}

// StatusConfig holds the status API settings.
type StatusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	// GRPCListenAddr serves the same view over gRPC when set.
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// RespondentDef is one entry of the responder list.
type RespondentDef struct {
	ID     string `yaml:"id"`
	Addr   string `yaml:"addr"`
	Weight int    `yaml:"weight"`
}

// ResponderConfig drives a conversation node.
type ResponderConfig struct {
	NodeID      string          `yaml:"node_id"`
	ThreadID    uint32          `yaml:"thread_id"`
	Seed        int64           `yaml:"seed"`
	MsgSize     int             `yaml:"msg_size"`
	MsgRate     float64         `yaml:"msg_rate"`
	Group       string          `yaml:"group"`
	Port        int             `yaml:"port"`
	Unicast     bool            `yaml:"unicast"`
	Respondents []RespondentDef `yaml:"respondents"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Generator  GeneratorConfig  `yaml:"generator"`
	NATS       NATSConfig       `yaml:"nats"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Status     StatusConfig     `yaml:"status"`
	Responder  ResponderConfig  `yaml:"responder"`
}

// Default returns a Config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills fields left unset by the YAML file.
func (c *Config) ApplyDefaults() {
	g := &c.Generator
	if g.Binary == "" {
		g.Binary = "mgen"
	}
	if g.SocketDir == "" {
		g.SocketDir = "/tmp"
	}
	if g.PipeDir == "" {
		g.PipeDir = os.TempDir()
	}
	if g.StartupTimeout <= 0 {
		g.StartupTimeout = 10 * time.Second
	}

	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "mgen.events"
	}

	ch := &c.ClickHouse
	if ch.Host == "" {
		ch.Host = "127.0.0.1"
	}
	if ch.Port == 0 {
		ch.Port = 9000
	}
	if ch.Database == "" {
		ch.Database = "default"
	}
	if ch.Username == "" {
		ch.Username = "default"
	}
	if ch.Table == "" {
		ch.Table = "generator_events"
	}
	if ch.BatchSize <= 0 {
		ch.BatchSize = 1000
	}
	if ch.FlushInterval <= 0 {
		ch.FlushInterval = 5 * time.Second
	}

	if c.Archive.Path == "" {
		c.Archive.Path = "./archive"
	}
	if c.Archive.Encoding == "" {
		c.Archive.Encoding = "text"
	}

	if c.Status.ListenAddr == "" {
		c.Status.ListenAddr = ":8080"
	}

	r := &c.Responder
	if r.ThreadID == 0 {
		r.ThreadID = 1
	}
	if r.Seed == 0 {
		r.Seed = 5522
	}
	if r.MsgSize <= 0 {
		r.MsgSize = 512
	}
	if r.MsgRate <= 0 {
		r.MsgRate = 1.0
	}
	if r.Group == "" && !r.Unicast {
		r.Group = "224.1.2.1"
	}
	if r.Port == 0 {
		r.Port = 5001
	}
}

// EnabledSinks names the event sinks switched on, in fan-out order.
func (c *Config) EnabledSinks() []string {
	var names []string
	if c.NATS.Enabled {
		names = append(names, "nats")
	}
	if c.ClickHouse.Enabled {
		names = append(names, "clickhouse")
	}
	if c.Archive.Enabled {
		names = append(names, "archive")
	}
	return names
}

// BuildResponder returns a Responder loaded with the configured respondents.
func (r ResponderConfig) BuildResponder() *responder.Responder {
	resp := responder.New(r.Seed)
	for _, d := range r.Respondents {
		resp.Add(d.ID, d.Addr, d.Weight)
	}
	return resp
}

// ParseRespondents parses the compact list form
// "node[/[addr/]weight][,node[/[addr/]weight]...]". Entries with a weight
// below 1 are dropped.
func ParseRespondents(s string) ([]RespondentDef, error) {
	var defs []RespondentDef
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, "/")
		def := RespondentDef{ID: parts[0], Weight: 1}
		var weight string
		switch len(parts) {
		case 1:
		case 2:
			weight = parts[1]
		case 3:
			def.Addr = parts[1]
			weight = parts[2]
		default:
			return nil, fmt.Errorf("invalid respondent %q", item)
		}
		if def.ID == "" {
			return nil, fmt.Errorf("respondent %q has no node id", item)
		}
		if weight != "" {
			w, err := strconv.Atoi(weight)
			if err != nil {
				return nil, fmt.Errorf("respondent %q: invalid weight: %w", item, err)
			}
			def.Weight = w
		}
		if def.Weight > 0 {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}
