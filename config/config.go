package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides, read after the YAML file and any .env files.
const (
	EnvAudioURL = "VOICEORDER_AUDIO_URL"
	EnvTextURL  = "VOICEORDER_TEXT_URL"
	EnvAPIURL   = "VOICEORDER_API_URL"
	EnvLogLevel = "VOICEORDER_LOG_LEVEL"
)

type Config struct {
	LogLevel    string          `yaml:"log_level"`
	MetricsAddr string          `yaml:"metrics_addr"`
	Transport   TransportConfig `yaml:"transport"`
	Capture     CaptureConfig   `yaml:"capture"`
	Playback    PlaybackConfig  `yaml:"playback"`
}

type TransportConfig struct {
	AudioURL         string        `yaml:"audio_url"`
	TextURL          string        `yaml:"text_url"`
	APIURL           string        `yaml:"api_url"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ReadLimit        int64         `yaml:"read_limit"`
}

type CaptureConfig struct {
	SampleRate      float64 `yaml:"sample_rate"`
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
	QueueSize       int     `yaml:"queue_size"`
	// InputOnly opens the microphone without the zero-gain monitor output.
	InputOnly bool `yaml:"input_only"`
}

type PlaybackConfig struct {
	SampleRate      float64       `yaml:"sample_rate"`
	FramesPerBuffer int           `yaml:"frames_per_buffer"`
	Fade            time.Duration `yaml:"fade"`
	HighPassHz      float64       `yaml:"highpass_hz"`
	HighPassQ       float64       `yaml:"highpass_q"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Transport: TransportConfig{
			AudioURL:         "ws://localhost:8000/ws/audio",
			TextURL:          "ws://localhost:8000/ws/text",
			APIURL:           "http://localhost:8000/api",
			ReconnectDelay:   2500 * time.Millisecond,
			HandshakeTimeout: 5 * time.Second,
			WriteTimeout:     2 * time.Second,
			ReadLimit:        1 << 20,
		},
		Capture: CaptureConfig{
			SampleRate:      16000,
			FramesPerBuffer: 320,
			QueueSize:       32,
		},
		Playback: PlaybackConfig{
			SampleRate:      24000,
			FramesPerBuffer: 480,
			Fade:            5 * time.Millisecond,
			HighPassHz:      20,
			HighPassQ:       0.7,
		},
	}
}

// LoadConfig reads the YAML file at path (a missing file yields the
// defaults), loads envFiles into the process environment and applies
// overrides from it.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		default:
			defer f.Close()
			if err := decode(f, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, name := range envFiles {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %q: %w", name, err)
		}
	}
	applyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromReader decodes YAML from r on top of the defaults and validates it.
// Environment overrides are not applied.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, &cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAudioURL); v != "" {
		cfg.Transport.AudioURL = v
	}
	if v := os.Getenv(EnvTextURL); v != "" {
		cfg.Transport.TextURL = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.Transport.APIURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

// Validate returns all problems found in cfg joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	for name, raw := range map[string]string{
		"transport.audio_url": cfg.Transport.AudioURL,
		"transport.text_url":  cfg.Transport.TextURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("%s %q must be a ws:// or wss:// URL", name, raw))
		}
	}
	if cfg.Transport.APIURL != "" {
		if u, err := url.Parse(cfg.Transport.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("transport.api_url %q must be an http:// or https:// URL", cfg.Transport.APIURL))
		}
	}
	if cfg.Transport.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("transport.reconnect_delay must be positive, got %v", cfg.Transport.ReconnectDelay))
	}
	if cfg.Transport.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.handshake_timeout must be positive, got %v", cfg.Transport.HandshakeTimeout))
	}
	if cfg.Transport.ReadLimit <= 0 {
		errs = append(errs, fmt.Errorf("transport.read_limit must be positive, got %d", cfg.Transport.ReadLimit))
	}

	if cfg.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate must be positive, got %v", cfg.Capture.SampleRate))
	}
	if cfg.Capture.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("capture.frames_per_buffer must be positive, got %d", cfg.Capture.FramesPerBuffer))
	}
	if cfg.Capture.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.queue_size must be positive, got %d", cfg.Capture.QueueSize))
	}

	if cfg.Playback.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("playback.sample_rate must be positive, got %v", cfg.Playback.SampleRate))
	}
	if cfg.Playback.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("playback.frames_per_buffer must be positive, got %d", cfg.Playback.FramesPerBuffer))
	}
	if cfg.Playback.Fade < 0 {
		errs = append(errs, fmt.Errorf("playback.fade must not be negative, got %v", cfg.Playback.Fade))
	}
	if cfg.Playback.HighPassHz <= 0 || cfg.Playback.HighPassHz >= cfg.Playback.SampleRate/2 {
		errs = append(errs, fmt.Errorf("playback.highpass_hz %v must be between 0 and Nyquist", cfg.Playback.HighPassHz))
	}
	if cfg.Playback.HighPassQ <= 0 {
		errs = append(errs, fmt.Errorf("playback.highpass_q must be positive, got %v", cfg.Playback.HighPassQ))
	}

	return errors.Join(errs...)
}
