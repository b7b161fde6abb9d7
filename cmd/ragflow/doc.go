// Copyright (c) RagFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 RagFlow 服务端程序入口。

# 概述

cmd/ragflow 是 RagFlow 引擎的可执行入口，提供 HTTP API 服务、
一次性查询、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
环境变量覆盖、结构化日志（zap）与 Prometheus 指标采集。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、query（一次性查询）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、RateLimiter（基于 IP）、APIKeyAuth（X-API-Key 头）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 释放引擎
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
