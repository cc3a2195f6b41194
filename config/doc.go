// Package config 提供 VoiceFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（VOICEFLOW_ 前缀）的顺序叠加，
// YAML 中的 ${VAR} 会在解析前展开。FileWatcher 以轮询方式监听场景
// 文件等配置文件的变更，供运行时热加载使用。
package config
