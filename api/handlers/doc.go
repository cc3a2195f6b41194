// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 VoiceFlow HTTP API 的请求处理器实现。

# 概述

handlers 包把会话编排核心（session、handoff、supervisor）暴露为
HTTP 端点。所有会话相关调用都经由 session.Manager.With 串行化，
处理器本身不持有会话状态。

# 核心类型

  - AgentHandler     — 基础 Agent 目录（列表、详情）
  - SessionHandler   — 会话覆盖、自定义 Agent、实验标签、检查点与结束会话
  - HandoffHandler   — 会话启动与 handoff 解析（令牌或通用 handoff 工具）
  - AdvisoryHandler  — 并发顾问评估与建议合成
  - HealthHandler    — 健康检查（/health, /ready, /version）
  - TransportHandler — 实时传输的 WebSocket 控制通道，按连接顺序处理帧
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）

# 错误映射

types.Error 的错误码映射为 HTTP 状态码：UNKNOWN_AGENT、UNKNOWN_SESSION
与 UNKNOWN_HANDOFF_TARGET 为 404，HANDOFF_NOT_ALLOWED 为 403，
AGENT_EXISTS 为 409，PERSISTENCE_FAILURE 为 503。失败的 handoff
在 data 字段中同时返回解析结果。
*/
package handlers
