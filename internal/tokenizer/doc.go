// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
Package tokenizer 提供提示词 token 计数能力，用于在加载 Agent 定义时
检查渲染后的系统提示词是否超出模型部署的 token 预算。

OpenAI 系列部署使用 tiktoken 精确计数；编码数据不可用时自动回退到
基于字符的估算器（区分 CJK 与 ASCII 字符）。
*/
package tokenizer
