// Copyright (c) RagFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 RagFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 RagFlow 所有 HTTP 端点的请求处理逻辑，
包括查询处理、批量查询、工作流状态查询、健康检查以及
统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - QueryHandler     — 查询处理器（单条、批量、工作流状态、阈值校准）
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（向量库、web 搜索后端等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
