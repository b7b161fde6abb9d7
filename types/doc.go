// Copyright (c) RagFlow Authors.
// Licensed under the MIT License.

/*
Package types 定义 RagFlow 检索管线各阶段之间传递的共享数据结构。

所有跨阶段传递的载荷都是显式的具名结构体（而非动态 map），枚举使用
强类型字符串常量。每个请求独占一份 QueryAnalysis、AssembledContext、
ConfidenceMetrics 和 WorkflowState，随请求生命周期创建和回收，
请求之间不共享可变状态。

# 核心类型

  - QueryAnalysis — 查询分析结果（意图、关键词、实体、查询置信度）
  - Candidate — 检索候选（本地向量检索或 Web 回退产生，统一形状）
  - AssembledContext — 按预算装配的上下文（块数/长度受 ContextType 约束）
  - ConfidenceMetrics — 多分量加权置信度与回退建议
  - RAGResult — 返回给调用方的最终结果信封
  - Error — 框架统一错误类型（错误码 + 可重试标记 + 原因链）
*/
package types
