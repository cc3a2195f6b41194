// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 VoiceFlow 测试的共享工具。

  - TestContext: 随测试结束自动取消的上下文
  - AssertEventuallyTrue: 轮询断言，用于后台持久化等异步结果

# 子包

  - testutil/fixtures: 预定义的 Agent 定义（Concierge、FraudAgent、
    BillingAgent、ChannelAdvisor）与对应的 Agent Registry
  - testutil/mocks: 可注入读写故障并统计调用次数的持久化 Store
*/
package testutil
