// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的编排层指标采集能力，覆盖
HTTP、交接、会话覆盖、顾问与持久化五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto.With
绑定调用方提供的 Registerer，测试时可传入独立 Registry 避免重复注册。
所有记录方法在 Collector 为 nil 时安全返回，组件可以选择不注入指标。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，按 method/path/status 分组。
  - 交接指标：按 source/target/result 计数，解析耗时直方图。
  - 覆盖指标：按 kind/source 统计覆盖写入次数。
  - 顾问指标：按 advisor/outcome 统计（ok、timeout、error、dropped）。
  - 持久化指标：按 operation/mode/result 统计，活跃会话 Gauge。
*/
package metrics
