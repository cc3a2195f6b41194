// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 persistence 提供会话状态的键值持久化抽象（Persistence Adapter）及多后端实现。

# 概述

会话覆盖存储（agent/session.Registry）以不透明的字节快照形式写入后端，
键为会话 ID，可选过期时间（TTL）。后端只需要支持按键覆盖写，
不需要跨会话事务。

# 核心接口

  - Store:  Get / Set(ttl) / Delete / Ping / Close
  - Purger: 可选接口，支持批量清理过期键（SQL、文件、内存后端）
  - Writer: 在 Store 之上提供两种写入模式：
    Save 为阻塞式检查点写入，SaveAsync 为提交到有界协程池的后台写入，
    失败只记录日志与指标，不会回传给对话轮次，也不会排队重试。

# 后端

  - memory: 开发与测试（默认）
  - file:   单节点部署，每个键一个 JSON 文件，原子替换写入
  - redis:  分布式部署，SET EX 原生过期
  - sql:    gorm（postgres / mysql / sqlite），带过期时间列
  - mongo:  mongo-driver v2，TTL 索引
*/
package persistence
