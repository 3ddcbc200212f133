// Package config 汇总命令行程序的配置：YAML 文件、TCPCORE_* 环境变量和命令行参数，后者优先。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/legamerdc/tcpcore"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("config: invalid")

const (
	ModeGreet = "greet"
	ModeChat  = "chat"
)

// 配置键与 serve 命令的参数同名
const (
	KeyPort        = "port"
	KeyBacklog     = "backlog"
	KeyMode        = "mode"
	KeyAdmin       = "admin"
	KeyDuration    = "duration"
	KeyTranscript  = "transcript"
	KeyLogLevel    = "log-level"
	KeyPollTimeout = "poll-timeout"
	KeyMaxEvents   = "max-events"
	KeyMaxClients  = "max-clients"
	KeyGreeting    = "greeting"
	KeyEcho        = "echo"
	KeyHistory     = "history"
	KeyMaxLine     = "max-line"
)

type Config struct {
	Port       string
	Backlog    int
	Mode       string
	Admin      string        // 管理端口地址，为空时不启动
	Duration   time.Duration // 0 表示运行到收到信号
	Transcript string        // 为空时不记录
	LogLevel   string

	PollTimeout time.Duration
	MaxEvents   int
	MaxClients  int

	Greeting    string
	Echo        bool
	HistorySize int
	MaxLineLen  int
}

func Default() Config {
	engine := tcpcore.DefaultConfig()
	return Config{
		Port:        "8080",
		Backlog:     10,
		Mode:        ModeGreet,
		LogLevel:    "info",
		PollTimeout: engine.PollTimeout,
		MaxEvents:   engine.MaxEvents,
		MaxClients:  engine.MaxClients,
		HistorySize: 32,
		MaxLineLen:  1024,
	}
}

// Load 读取配置。path 为空时在当前目录查找可选的 tcpcore.yaml；
// flags 中被显式设置的参数覆盖文件与环境变量。
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault(KeyPort, d.Port)
	v.SetDefault(KeyBacklog, d.Backlog)
	v.SetDefault(KeyMode, d.Mode)
	v.SetDefault(KeyAdmin, d.Admin)
	v.SetDefault(KeyDuration, d.Duration)
	v.SetDefault(KeyTranscript, d.Transcript)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyPollTimeout, d.PollTimeout)
	v.SetDefault(KeyMaxEvents, d.MaxEvents)
	v.SetDefault(KeyMaxClients, d.MaxClients)
	v.SetDefault(KeyGreeting, d.Greeting)
	v.SetDefault(KeyEcho, d.Echo)
	v.SetDefault(KeyHistory, d.HistorySize)
	v.SetDefault(KeyMaxLine, d.MaxLineLen)

	v.SetEnvPrefix("TCPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("tcpcore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: %w", err)
			}
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("config: bind flags: %w", err)
		}
	}
	return decode(v)
}

// decode 用 cast 统一类型，端口写成数字或字符串均可
func decode(v *viper.Viper) (Config, error) {
	var c Config
	var err error
	if c.Port, err = cast.ToStringE(v.Get(KeyPort)); err != nil {
		return c, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyPort, err)
	}
	if c.Backlog, err = cast.ToIntE(v.Get(KeyBacklog)); err != nil {
		return c, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyBacklog, err)
	}
	if c.Duration, err = cast.ToDurationE(v.Get(KeyDuration)); err != nil {
		return c, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyDuration, err)
	}
	if c.PollTimeout, err = cast.ToDurationE(v.Get(KeyPollTimeout)); err != nil {
		return c, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyPollTimeout, err)
	}
	if c.MaxEvents, err = cast.ToIntE(v.Get(KeyMaxEvents)); err != nil {
		return c, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyMaxEvents, err)
	}
	if c.MaxClients, err = cast.ToIntE(v.Get(KeyMaxClients)); err != nil {
		return c, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyMaxClients, err)
	}
	if c.HistorySize, err = cast.ToIntE(v.Get(KeyHistory)); err != nil {
		return c, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyHistory, err)
	}
	if c.MaxLineLen, err = cast.ToIntE(v.Get(KeyMaxLine)); err != nil {
		return c, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyMaxLine, err)
	}
	if c.Echo, err = cast.ToBoolE(v.Get(KeyEcho)); err != nil {
		return c, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyEcho, err)
	}
	c.Mode = strings.ToLower(cast.ToString(v.Get(KeyMode)))
	c.Admin = cast.ToString(v.Get(KeyAdmin))
	c.Transcript = cast.ToString(v.Get(KeyTranscript))
	c.LogLevel = cast.ToString(v.Get(KeyLogLevel))
	c.Greeting = cast.ToString(v.Get(KeyGreeting))
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("%w: empty port", ErrInvalid)
	case c.Backlog <= 0:
		return fmt.Errorf("%w: backlog must be positive, got %d", ErrInvalid, c.Backlog)
	case c.PollTimeout <= 0:
		return fmt.Errorf("%w: poll timeout must be positive, got %s", ErrInvalid, c.PollTimeout)
	case c.MaxEvents <= 0:
		return fmt.Errorf("%w: max events must be positive, got %d", ErrInvalid, c.MaxEvents)
	case c.MaxClients < 0:
		return fmt.Errorf("%w: max clients must not be negative", ErrInvalid)
	case c.Duration < 0:
		return fmt.Errorf("%w: negative duration", ErrInvalid)
	case c.Mode != ModeGreet && c.Mode != ModeChat:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalid, c.Mode)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Engine 返回分发循环配置
func (c Config) Engine() tcpcore.Config {
	cfg := tcpcore.DefaultConfig()
	cfg.PollTimeout = c.PollTimeout
	cfg.MaxEvents = c.MaxEvents
	cfg.MaxClients = c.MaxClients
	return cfg
}

// Level 解析日志级别（debug、info、warn、error）
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}
