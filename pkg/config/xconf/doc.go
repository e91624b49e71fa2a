// Package xconf 基于 koanf 的配置加载。
//
// 支持 YAML / JSON，来源可以是文件或字节数据（如 K8s ConfigMap 挂载内容）。
// 反序列化使用 koanf 标签，时长字段可直接写成 "5s"、"1h" 等字符串。
//
//	cfg, err := xconf.New("/etc/xatomic.yaml")
//	if err != nil {
//	    return err
//	}
//	var settings Settings
//	if err := cfg.Unmarshal("", &settings); err != nil {
//	    return err
//	}
//
// 更复杂的读取操作直接使用 [Config.Client] 返回的 *koanf.Koanf。
package xconf
