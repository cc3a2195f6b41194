// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 session 实现会话级覆盖存储（Session Override Store）与覆盖解析器
（Override Resolver），以及管理内存会话生命周期的 Manager。

# 概述

每个会话拥有一个 Registry：按 Agent 名称保存覆盖记录（提示词、音色、
模型、工具列表、问候语、模板变量），外加会话级的 handoff 令牌映射、
当前活跃 Agent、实验标记和会话内自定义 Agent。共享的 Agent 定义
（definition.Registry）永远不会被修改。

# 解析规则

  - 自定义 Agent 优先，原样返回
  - 没有任何覆盖时直接返回共享的基础定义指针（零分配）
  - 模板变量为合并（覆盖方优先），工具列表为整体替换

# 并发模型

Registry 本身不加锁，遵循“单会话单写者”约束；服务边界上由
Manager.With 以会话粒度的互斥锁串行化调用方。每次覆盖写入后触发
变更钩子，Manager 在调用方协程上编码快照，再提交到有界协程池
后台写入持久化层。
*/
package session
