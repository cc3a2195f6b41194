// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 supervisor 实现多 Agent 顾问监督器：并发运行只给出建议、从不直接
面对用户的顾问 Agent，并把结果汇总给对话循环。

# 核心模型

  - Advice：单个顾问的建议（动作、紧急度、理由、推荐渠道、需保留字段）
  - Advisor：顾问接口，RuleAdvisor 为基于固定规则表的默认实现
  - AdvisorFactory：根据顾问 Agent 的有效定义构建 Advisor
  - Supervisor：在有界协程池上并发评估，所有顾问共享同一截止时间

# 规则表

按顺序匹配，首条命中即返回：

  - 等待时间 > 120 秒或队列深度 > 50：high / suggest_switch
  - 问题类型属于需要文档的集合：medium / suggest_switch
  - 情绪分 < 0.3：high / escalate
  - 其他：low / continue

# 失败语义

出错、panic 或超过截止时间的顾问直接从结果中剔除，不重试也不视为
致命错误。结果按输入顺序排列，Synthesize 取紧急度最高者，平局按输入
顺序决定。
*/
package supervisor
