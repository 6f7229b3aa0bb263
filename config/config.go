package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "RELAY"

var (
	ErrInvalidPolicy = errors.New("config: presence.policy must be first_wins or last_wins")
	ErrInvalidDriver = errors.New("config: events.driver must be none, gochannel or amqp")
	ErrMissingAMQP   = errors.New("config: events.amqp_url is required for the amqp driver")
	ErrInboundNoBus  = errors.New("config: events.inbound needs the gochannel or amqp driver")
)

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	SocketIO  SocketIOConfig  `mapstructure:"socketio"`
	Transport TransportConfig `mapstructure:"transport"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Events    EventsConfig    `mapstructure:"events"`
	Log       LogConfig       `mapstructure:"log"`

	// Level is shared with the slog handler so a config file edit can change
	// verbosity without a restart.
	Level *slog.LevelVar `mapstructure:"-"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SocketIOConfig struct {
	Path string `mapstructure:"path"`
}

type TransportConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PingTimeout  time.Duration `mapstructure:"ping_timeout"`
	MailboxSize  int           `mapstructure:"mailbox_size"`
}

type PresenceConfig struct {
	Policy string `mapstructure:"policy"`
}

type RelayConfig struct {
	NotifyUndelivered bool `mapstructure:"notify_undelivered"`
	DedupSize         int  `mapstructure:"dedup_size"`
}

type EventsConfig struct {
	Driver      string `mapstructure:"driver"`
	AMQPURL     string `mapstructure:"amqp_url"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	BufferSize  int    `mapstructure:"buffer_size"`
	Inbound     bool   `mapstructure:"inbound"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewFlagSet declares every key with its default. The same set feeds viper,
// so defaults live in exactly one place.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)

	fs.String("config_file", "", "Path to the configuration file")

	fs.String("http.addr", ":4000", "HTTP listen address")
	fs.StringSlice("http.cors_origins", []string{"http://localhost:5173"}, "Allowed CORS origins")
	fs.Duration("http.shutdown_timeout", 15*time.Second, "Graceful shutdown timeout")

	fs.String("socketio.path", "/socket.io/", "socket.io mount path")

	fs.Duration("transport.ping_interval", 25*time.Second, "Keepalive ping interval")
	fs.Duration("transport.ping_timeout", 60*time.Second, "Close a connection after this long without traffic")
	fs.Int("transport.mailbox_size", 256, "Per-connection outbound buffer")

	fs.String("presence.policy", "first_wins", "Duplicate registration policy: first_wins or last_wins")

	fs.Bool("relay.notify_undelivered", false, "Tell senders when the receiver is offline")
	fs.Int("relay.dedup_size", 0, "Remember this many (sender, messageId) pairs and drop repeats; 0 disables")

	fs.String("events.driver", "none", "Outbound event bus: none, gochannel or amqp")
	fs.String("events.amqp_url", "", "AMQP broker URL")
	fs.String("events.topic_prefix", "presence_relay", "Outbound topic prefix")
	fs.Int("events.buffer_size", 1024, "Outbound event queue size")
	fs.Bool("events.inbound", false, "Consume server-originated messages from <topic_prefix>.message.push")

	fs.String("log.level", "info", "debug, info, warn or error")
	fs.String("log.format", "json", "json or text")

	return fs
}

// LoadConfig merges flag defaults, the optional config file, RELAY_* env vars
// and explicitly set flags, in increasing precedence.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{Level: new(slog.LevelVar)}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Level.Set(ParseLevel(cfg.Log.Level))

	if v.ConfigFileUsed() != "" {
		watchLevel(v, cfg.Level)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Presence.Policy {
	case "first_wins", "last_wins":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidPolicy, c.Presence.Policy)
	}

	switch c.Events.Driver {
	case "none":
		if c.Events.Inbound {
			return ErrInboundNoBus
		}
	case "gochannel":
	case "amqp":
		if c.Events.AMQPURL == "" {
			return ErrMissingAMQP
		}
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidDriver, c.Events.Driver)
	}

	if c.Transport.MailboxSize <= 0 {
		return fmt.Errorf("config: transport.mailbox_size must be positive, got %d", c.Transport.MailboxSize)
	}
	if c.Relay.DedupSize < 0 {
		return fmt.Errorf("config: relay.dedup_size must not be negative, got %d", c.Relay.DedupSize)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Log.Format == "text"
}

func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// watchLevel applies log.level edits from the config file at runtime. Other
// keys need a restart.
func watchLevel(v *viper.Viper, level *slog.LevelVar) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next := ParseLevel(v.GetString("log.level"))
		if next != level.Level() {
			slog.Info("CONFIG_LOG_LEVEL_CHANGED", "file", e.Name, "from", level.Level().String(), "to", next.String())
			level.Set(next)
		}
	})
	v.WatchConfig()
}
