// Copyright (c) RagFlow Authors.
// Licensed under the MIT License.

// 包 store 提供检索引擎的外部后端客户端：
//
//   - QdrantSearcher：基于 Qdrant REST API 的向量搜索，查询文本经
//     Embedder 生成向量后做相似度搜索，实现 retrieval.VectorSearcher；
//     同时提供文档写入、删除与计数，供索引通路使用。
//   - OpenAIEmbedder：OpenAI 兼容的 /embeddings 客户端。
//   - TavilySearcher：Tavily 风格的 web 搜索客户端，实现
//     fallback.WebSearcher。
//
// 所有客户端均为纯 HTTP JSON 实现，无额外 SDK 依赖，
// 可通过替换 base URL 指向任意兼容服务。
package store
