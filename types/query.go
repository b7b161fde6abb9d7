package types

import "time"

// Intent 表示查询的检测意图
type Intent string

const (
	IntentSearch   Intent = "search"   // Locate specific information
	IntentExplain  Intent = "explain"  // Explain a concept
	IntentCompare  Intent = "compare"  // Compare multiple items
	IntentHelp     Intent = "help"     // How-to / assistance
	IntentQuestion Intent = "question" // Direct question
	IntentAnalysis Intent = "analysis" // Analysis / evaluation
	IntentGeneral  Intent = "general"  // No clear signal
	IntentUnknown  Intent = "unknown"  // Empty or unparseable input
)

// QueryType 表示查询的结构类型
type QueryType string

const (
	QueryTypeQuestion QueryType = "question"
	QueryTypeCommand  QueryType = "command"
	QueryTypeFactual  QueryType = "factual"
	QueryTypeComplex  QueryType = "complex"
	QueryTypeGeneral  QueryType = "general"
)

// Strategy 表示检索前选定的搜索策略
type Strategy string

const (
	StrategyLocalOnly Strategy = "local_only"
	StrategyWebOnly   Strategy = "web_only"
	StrategyHybrid    Strategy = "hybrid"
)

// QueryAnalysis 查询分析结果。每个请求创建一次，创建后不可变，
// 供检索阶段和置信度评估阶段消费。
type QueryAnalysis struct {
	OriginalText   string         `json:"original_text"`
	NormalizedText string         `json:"normalized_text"`
	EnhancedText   string         `json:"enhanced_text"`
	Intent         Intent         `json:"intent"`
	QueryType      QueryType      `json:"query_type"`
	Keywords       []string       `json:"keywords"`
	Entities       []string       `json:"entities"`
	Confidence     float64        `json:"confidence"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// StrategyDecision 策略选择器的决策结果
type StrategyDecision struct {
	Strategy            Strategy  `json:"strategy"`
	Reason              string    `json:"reason"`
	ConfidenceThreshold float64   `json:"confidence_threshold"`
	Timestamp           time.Time `json:"timestamp"`
}

// SessionContext 会话上下文，供策略选择器使用。
// 只读，请求之间可共享。
type SessionContext struct {
	HasUploadedDocuments bool   `json:"has_uploaded_documents"`
	UserID               string `json:"user_id,omitempty"`
	ConversationID       string `json:"conversation_id,omitempty"`
}
