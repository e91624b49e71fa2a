//go:build !windows

package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xatomic/pkg/config/xconf"
	"github.com/omeyang/xatomic/pkg/distributed/xatomic"
	"github.com/omeyang/xatomic/pkg/distributed/xdlock"
)

const (
	backendRedis = "redis"
	backendEtcd  = "etcd"
	backendLocal = "local"

	defaultRedisAddr    = "127.0.0.1:6379"
	defaultEtcdEndpoint = "127.0.0.1:2379"
)

// Config xatomicctl 配置。
//
//	backend: redis
//	keyPrefix: "lock:"
//	maxWait: 1h
//	redis:
//	  addrs: ["10.0.0.1:6379"]
//	breaker:
//	  enabled: true
type Config struct {
	Backend        string        `koanf:"backend"`
	KeyPrefix      string        `koanf:"keyPrefix"`
	MaxWait        time.Duration `koanf:"maxWait"`
	Expiry         time.Duration `koanf:"expiry"`
	ReleaseTimeout time.Duration `koanf:"releaseTimeout"`
	Trace          bool          `koanf:"trace"`
	Redis          RedisConfig   `koanf:"redis"`
	Etcd           EtcdConfig    `koanf:"etcd"`
	Breaker        BreakerConfig `koanf:"breaker"`
	Log            LogConfig     `koanf:"log"`
}

// RedisConfig 多个地址时每个地址是一个独立节点（Redlock）。
type RedisConfig struct {
	Addrs    []string `koanf:"addrs"`
	Password string   `koanf:"password"`
	DB       int      `koanf:"db"`
}

// EtcdConfig etcd 客户端配置加 Session TTL（秒）。
type EtcdConfig struct {
	xdlock.EtcdConfig `koanf:",squash"`
	TTL               int `koanf:"ttl"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Failures uint32        `koanf:"failures"`
	Timeout  time.Duration `koanf:"timeout"`
}

// LogConfig 日志配置，File 为空时输出到 stderr。
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Backend:        backendRedis,
		KeyPrefix:      "lock:",
		MaxWait:        xatomic.DefaultMaxWait,
		Expiry:         8 * time.Second,
		ReleaseTimeout: xatomic.DefaultReleaseTimeout,
		Etcd: EtcdConfig{
			EtcdConfig: *xdlock.DefaultEtcdConfig(),
			TTL:        60,
		},
		Breaker: BreakerConfig{
			Failures: 5,
			Timeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// loadConfig 依次应用默认值、配置文件和命令行选项。
func loadConfig(cmd *cli.Command) (*Config, error) {
	cfg := defaultConfig()

	if path := cmd.String("config"); path != "" {
		if err := loadInto(path, cfg); err != nil {
			return nil, err
		}
	}

	applyFlags(cmd, cfg)

	// 列表的默认值在合并后填充，避免与文件中的列表混合
	if len(cfg.Redis.Addrs) == 0 {
		cfg.Redis.Addrs = []string{defaultRedisAddr}
	}
	if len(cfg.Etcd.Endpoints) == 0 {
		cfg.Etcd.Endpoints = []string{defaultEtcdEndpoint}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadInto 把配置文件合并到 cfg，文件中没有的字段保留原值。
func loadInto(path string, cfg *Config) error {
	c, err := xconf.New(path)
	if err != nil {
		return err
	}
	return c.Unmarshal("", cfg)
}

func applyFlags(cmd *cli.Command, cfg *Config) {
	if cmd.IsSet("backend") {
		cfg.Backend = cmd.String("backend")
	}
	if cmd.IsSet("redis-addr") {
		cfg.Redis.Addrs = cmd.StringSlice("redis-addr")
	}
	if cmd.IsSet("etcd-endpoint") {
		cfg.Etcd.Endpoints = cmd.StringSlice("etcd-endpoint")
	}
	if cmd.IsSet("key-prefix") {
		cfg.KeyPrefix = cmd.String("key-prefix")
	}
	if cmd.IsSet("max-wait") {
		cfg.MaxWait = cmd.Duration("max-wait")
	}
	if cmd.IsSet("expiry") {
		cfg.Expiry = cmd.Duration("expiry")
	}
	if cmd.IsSet("trace") {
		cfg.Trace = cmd.Bool("trace")
	}
	if cmd.IsSet("breaker") {
		cfg.Breaker.Enabled = cmd.Bool("breaker")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("log-file") {
		cfg.Log.File = cmd.String("log-file")
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case backendRedis, backendEtcd, backendLocal:
	default:
		return &usageError{msg: fmt.Sprintf("unknown backend %q (want redis, etcd or local)", c.Backend)}
	}
	if c.MaxWait <= 0 {
		return &usageError{msg: fmt.Sprintf("max wait must be positive, got %s", c.MaxWait)}
	}
	if c.Expiry <= 0 {
		return &usageError{msg: fmt.Sprintf("expiry must be positive, got %s", c.Expiry)}
	}
	return nil
}

// keepAliveInterval 持锁期间的续期间隔，取过期时间的 1/3
func (c *Config) keepAliveInterval() time.Duration {
	return c.Expiry / 3
}

// mutexOptions 每次获取锁使用的选项
func (c *Config) mutexOptions() []xdlock.MutexOption {
	return []xdlock.MutexOption{
		xdlock.WithKeyPrefix(c.KeyPrefix),
		xdlock.WithExpiry(c.Expiry),
	}
}
