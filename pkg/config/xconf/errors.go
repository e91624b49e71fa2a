package xconf

import "errors"

var (
	// ErrEmptyPath 配置文件路径为空
	ErrEmptyPath = errors.New("xconf: empty config path")
	// ErrUnsupportedFormat 不支持的配置格式
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")
	// ErrLoadFailed 读取配置来源失败
	ErrLoadFailed = errors.New("xconf: failed to load config")
	// ErrParseFailed 配置内容解析失败
	ErrParseFailed = errors.New("xconf: failed to parse config")
	// ErrUnmarshalFailed 反序列化到结构体失败
	ErrUnmarshalFailed = errors.New("xconf: failed to unmarshal config")
	// ErrReloadBytes 字节数据创建的配置无法重新加载
	ErrReloadBytes = errors.New("xconf: cannot reload config created from bytes")
)
