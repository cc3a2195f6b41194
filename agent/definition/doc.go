// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
Package definition 提供语音 Agent 的定义模型、加载器与只读注册表。

# 概述

Definition 描述一个 Agent 的全部静态配置：提示词模板、问候语模板、
交接触发词、语音参数、模型参数、工具名列表、模板变量默认值与会话设置。
进程启动时由 Loader 加载一次，之后在进程生命周期内保持不可变，
可被所有会话无锁共享。

# 核心类型

  - Definition  — Agent 定义（名称唯一）
  - VoiceConfig — 语音名称、风格、语速、音调
  - ModelConfig — 部署 ID、温度、top-p、最大 Token 数及按模式的变体
  - Registry    — 只读注册表，Get / List / HandoffTriggers
  - Loader      — 定义加载器接口，YAMLLoader 从目录读取 YAML 文件

# 错误处理

加载阶段出现重名 Agent 时返回 ErrDuplicateAgent，属于致命配置错误，
调用方应终止启动；运行期不存在任何修改注册表的 API。
*/
package definition
