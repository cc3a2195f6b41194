// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 VoiceFlow 全局共享的错误类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。agent/definition、agent/session、
agent/handoff、api/handlers 等上层模块通过统一的 ErrorCode 与 Error 结构
表达错误分类，并据此决定是否向会话循环暴露错误。

# 核心类型

  - ErrorCode — 统一错误码（UNKNOWN_AGENT、UNKNOWN_HANDOFF_TARGET 等）
  - Error     — 结构化错误，含 HTTP 状态码、Retryable 与原因链

# 错误分类

结构性错误（UNKNOWN_AGENT、UNKNOWN_HANDOFF_TARGET）总是返回给调用方；
RENDER_ERROR、PERSISTENCE_FAILURE、CUSTOM_AGENT_CONFLICT 在检测到它们的组件内
被记录并降级处理，不会中断对话轮次。
*/
package types
