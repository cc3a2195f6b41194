// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 handoff 实现 Agent 之间的交接解析状态机与场景配置。

# 概述

会话中每个可能的活跃 Agent 是一个状态，交接令牌触发状态迁移。
Resolver 依次完成：令牌查找、目标 Agent 有效定义解析、场景配置
（announced / discrete、是否共享上下文）、渲染上下文构建、问候语
选择，最后更新会话的活跃 Agent。

# 失败语义

令牌未映射（ErrUnknownHandoffTarget）或目标不存在（ErrUnknownAgent）
时返回 Success=false 的 Resolution，会话的活跃 Agent 保持不变；
是否重试、询问用户或放弃由对话循环决定，Resolver 从不替换目标。

# 场景配置

Scenario 由 YAML 描述：默认交接类型、按 (from, to) 的边配置，以及
可选的通用交接工具（generic_handoff），后者允许模型直接指定目标
Agent，但只能沿场景中声明的边交接。StaticScenario 为所有交接返回
同一配置。
*/
package handoff
