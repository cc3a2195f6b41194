// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 VoiceFlow 编排服务的程序入口。

# 概述

cmd/voiceflow 加载 Agent 定义与交接场景，构建会话管理器、交接解析器
和监督顾问，并通过 HTTP API 对外提供服务。除 serve 外还提供离线的
validate（校验定义）与 simulate（模拟一次通话的交接序列）子命令。

# 核心类型

  - Server     — 管理 API、Metrics 双端口、场景热重载与优雅关闭
  - core       — 各子命令共享的编排组件集合
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、validate、simulate、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    OTelTracing、RateLimiter（基于 IP）、Authenticate（API Key / JWT）、
    MetricsMiddleware（按路由模式打标签）
  - 场景热重载：轮询场景文件，变更后原子替换交接图
  - 优雅关闭：信号监听 → 关闭 HTTP → 停止后台任务 → 刷写会话 → 关闭存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
