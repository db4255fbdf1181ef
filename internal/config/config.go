package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	StaticPath    string        `mapstructure:"static_path"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	SendQueue     int           `mapstructure:"send_queue"`
	Secret        string        `mapstructure:"secret"`
	Backpressure  string        `mapstructure:"backpressure"`
	Log           Log           `mapstructure:"log"`
	Chat          Chat          `mapstructure:"chat"`
	Transcription Transcription `mapstructure:"transcription"`
	Translation   Translation   `mapstructure:"translation"`
	ICEServers    []ICEServer   `mapstructure:"ice_servers"`

	v *viper.Viper
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console|json
}

type Chat struct {
	MaxLength    int           `mapstructure:"max_length"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type Transcription struct {
	// Endpoint is the base URL of a Whisper-compatible API, e.g. http://localhost:8000/v1
	Endpoint       string        `mapstructure:"endpoint"`
	HealthURL      string        `mapstructure:"health_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	SourceLanguage string        `mapstructure:"source_language"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	// ProbeInterval > 0 re-probes the backend periodically; 0 probes once at startup.
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	MaxBufferBytes int           `mapstructure:"max_buffer_bytes"`
}

type Translation struct {
	// Endpoint is the LibreTranslate base URL; /translate and /languages are appended.
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("huddle")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names the original deployment scripts export.
	_ = v.BindEnv("port", "HUDDLE_PORT", "PORT")
	_ = v.BindEnv("transcription.endpoint", "HUDDLE_TRANSCRIPTION_ENDPOINT", "WHISPER_ENDPOINT")
	_ = v.BindEnv("transcription.api_key", "HUDDLE_TRANSCRIPTION_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("translation.endpoint", "HUDDLE_TRANSLATION_ENDPOINT", "LIBRETRANSLATE_ENDPOINT")
	_ = v.BindEnv("translation.api_key", "HUDDLE_TRANSLATION_API_KEY", "LIBRETRANSLATE_API_KEY")

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		fileLoaded = false
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if fileLoaded {
		cfg.v = v
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_queue", 64)
	v.SetDefault("secret", "change-me")
	v.SetDefault("backpressure", "kick")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("chat.max_length", 4000)
	v.SetDefault("chat.rate_limit", 20)
	v.SetDefault("chat.rate_interval", "10s")

	v.SetDefault("transcription.endpoint", "http://localhost:8000/v1")
	v.SetDefault("transcription.health_url", "")
	v.SetDefault("transcription.api_key", "")
	v.SetDefault("transcription.model", "whisper-1")
	v.SetDefault("transcription.source_language", "en")
	v.SetDefault("transcription.flush_interval", "2s")
	v.SetDefault("transcription.timeout", "10s")
	v.SetDefault("transcription.probe_timeout", "2s")
	v.SetDefault("transcription.probe_interval", "0s")
	v.SetDefault("transcription.max_buffer_bytes", 4<<20)

	v.SetDefault("translation.endpoint", "https://libretranslate.com")
	v.SetDefault("translation.api_key", "")
	v.SetDefault("translation.timeout", "5s")

	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Transcription.FlushInterval <= 0 {
		return errors.New("transcription.flush_interval must be positive")
	}
	if c.SendQueue <= 0 {
		return errors.New("send_queue must be positive")
	}
	for _, s := range c.ICEServers {
		for _, raw := range s.URLs {
			if _, err := stun.ParseURI(raw); err != nil {
				return fmt.Errorf("invalid ice server url %q: %w", raw, err)
			}
		}
	}
	return nil
}

// HealthEndpoint defaults to <endpoint>/health.
func (t Transcription) HealthEndpoint() string {
	if t.HealthURL != "" {
		return t.HealthURL
	}
	return strings.TrimSuffix(t.Endpoint, "/") + "/health"
}

func (c *Config) WebRTCICEServers() []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

// Watch reloads the file on change and hands the new config to fn.
// It is a no-op when no config file was read.
func (c *Config) Watch(fn func(*Config)) {
	if c.v == nil {
		return
	}
	v := c.v
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		fn(next)
	})
	v.WatchConfig()
}
