package xdlock

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
)

const (
	defaultDialTimeout          = 5 * time.Second
	defaultDialKeepAliveTime    = 10 * time.Second
	defaultDialKeepAliveTimeout = 3 * time.Second
)

// EtcdConfig etcd 客户端配置，支持 koanf/json/yaml 反序列化。
//
// 推荐从 DefaultEtcdConfig 开始按需覆盖，布尔字段的零值不是推荐值。
type EtcdConfig struct {
	Endpoints            []string      `json:"endpoints" yaml:"endpoints" koanf:"endpoints"`
	Username             string        `json:"username" yaml:"username" koanf:"username"`
	Password             string        `json:"password" yaml:"password" koanf:"password"`
	DialTimeout          time.Duration `json:"dialTimeout" yaml:"dialTimeout" koanf:"dialTimeout"`
	DialKeepAliveTime    time.Duration `json:"dialKeepAliveTime" yaml:"dialKeepAliveTime" koanf:"dialKeepAliveTime"`
	DialKeepAliveTimeout time.Duration `json:"dialKeepAliveTimeout" yaml:"dialKeepAliveTimeout" koanf:"dialKeepAliveTimeout"`
	RejectOldCluster     bool          `json:"rejectOldCluster" yaml:"rejectOldCluster" koanf:"rejectOldCluster"`
	PermitWithoutStream  bool          `json:"permitWithoutStream" yaml:"permitWithoutStream" koanf:"permitWithoutStream"`
}

// DefaultEtcdConfig 返回默认配置：拨号 5s，keepalive 10s/3s，拒绝旧集群，无流也发送 keepalive。
func DefaultEtcdConfig() *EtcdConfig {
	return &EtcdConfig{
		DialTimeout:          defaultDialTimeout,
		DialKeepAliveTime:    defaultDialKeepAliveTime,
		DialKeepAliveTimeout: defaultDialKeepAliveTimeout,
		RejectOldCluster:     true,
		PermitWithoutStream:  true,
	}
}

// Validate 检查 endpoints 非空且为 host:port 形式。
func (c *EtcdConfig) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}
	for i, ep := range c.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return fmt.Errorf("%w: endpoint[%d] is empty", ErrInvalidEndpoint, i)
		}
		if !strings.Contains(ep, ":") {
			return fmt.Errorf("%w: endpoint[%d]=%q missing port", ErrInvalidEndpoint, i, ep)
		}
	}
	return nil
}

// withDefaults 返回填充了零值字段的副本
func (c *EtcdConfig) withDefaults() EtcdConfig {
	cfg := *c
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.DialKeepAliveTime <= 0 {
		cfg.DialKeepAliveTime = defaultDialKeepAliveTime
	}
	if cfg.DialKeepAliveTimeout <= 0 {
		cfg.DialKeepAliveTimeout = defaultDialKeepAliveTimeout
	}
	return cfg
}

// clientConfig 构建 clientv3.Config。keepalive 只通过 DialOptions 设置，
// 这样 PermitWithoutStream 也能生效。
func (c *EtcdConfig) clientConfig(tlsConfig *tls.Config) clientv3.Config {
	cfg := c.withDefaults()
	return clientv3.Config{
		Endpoints:        cfg.Endpoints,
		DialTimeout:      cfg.DialTimeout,
		Username:         cfg.Username,
		Password:         cfg.Password,
		RejectOldCluster: cfg.RejectOldCluster,
		TLS:              tlsConfig,
		DialOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                cfg.DialKeepAliveTime,
				Timeout:             cfg.DialKeepAliveTimeout,
				PermitWithoutStream: cfg.PermitWithoutStream,
			}),
		},
	}
}

type etcdClientOptions struct {
	ctx           context.Context
	healthCheck   bool
	healthTimeout time.Duration
	tlsConfig     *tls.Config
}

// EtcdClientOption etcd 客户端选项
type EtcdClientOption func(*etcdClientOptions)

// WithEtcdClientContext 健康检查使用的父 context
func WithEtcdClientContext(ctx context.Context) EtcdClientOption {
	return func(o *etcdClientOptions) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// WithEtcdHealthCheck 创建后执行一次 Get 验证连接，timeout <= 0 时使用 10s。
func WithEtcdHealthCheck(enabled bool, timeout time.Duration) EtcdClientOption {
	return func(o *etcdClientOptions) {
		o.healthCheck = enabled
		if timeout > 0 {
			o.healthTimeout = timeout
		}
	}
}

// WithEtcdTLS 启用 TLS
func WithEtcdTLS(config *tls.Config) EtcdClientOption {
	return func(o *etcdClientOptions) {
		o.tlsConfig = config
	}
}

// NewEtcdClient 按配置创建 etcd 客户端，调用方负责 Close。
func NewEtcdClient(config *EtcdConfig, opts ...EtcdClientOption) (*clientv3.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := &etcdClientOptions{ctx: context.Background(), healthTimeout: 10 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	client, err := clientv3.New(config.clientConfig(o.tlsConfig))
	if err != nil {
		return nil, fmt.Errorf("xdlock: create etcd client: %w", err)
	}
	if o.healthCheck {
		ctx, cancel := context.WithTimeout(o.ctx, o.healthTimeout)
		defer cancel()
		if _, err := client.Get(ctx, "xdlock-health-check"); err != nil {
			return nil, errors.Join(fmt.Errorf("xdlock: etcd health check: %w", err), client.Close())
		}
	}
	return client, nil
}

// NewEtcdFactoryFromConfig 等同于 NewEtcdClient + NewEtcdFactory。
// 返回的 client 由调用方在关闭工厂之后关闭。
func NewEtcdFactoryFromConfig(
	config *EtcdConfig,
	clientOpts []EtcdClientOption,
	factoryOpts ...EtcdFactoryOption,
) (Factory, *clientv3.Client, error) {
	client, err := NewEtcdClient(config, clientOpts...)
	if err != nil {
		return nil, nil, err
	}
	factory, err := NewEtcdFactory(client, factoryOpts...)
	if err != nil {
		return nil, nil, errors.Join(err, client.Close())
	}
	return factory, client, nil
}
