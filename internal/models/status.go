package models

// Status reports what the running instance is connected to and how much it holds.
type Status struct {
	VectorStore    string `json:"vector_store"`
	Collection     string `json:"collection"`
	Records        uint64 `json:"records"`
	Uploads        int64  `json:"uploads"`
	Chunks         int64  `json:"chunks"`
	EmbeddingModel string `json:"embedding_model"`
	Dimensions     int    `json:"dimensions"`
	LLMProvider    string `json:"llm_provider"`
	LLMModel       string `json:"llm_model"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}
