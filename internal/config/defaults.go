package config

// DefaultAllowedExtensions is the upload allow-list.
var DefaultAllowedExtensions = []string{
	"pdf", "docx", "pptx", "ppt", "xlsx", "xls", "csv", "txt", "json",
	"png", "jpg", "jpeg", "webp", "mp3", "wav", "m4a", "ogg",
}

// DefaultMedicalKeywords gate uploads when the medical-only filter is on.
var DefaultMedicalKeywords = []string{
	"patient", "diagnosis", "scan", "mri", "ct", "xray", "symptom", "treatment",
	"doctor", "medication", "blood", "report", "prescription", "test", "clinic",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/medsage/data/db/uploads.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/medsage/data/indices/vectors.bin"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.ModelName == "" {
		cfg.Embedding.ModelName = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/medsage/data/models/bge-small-en-v1.5.onnx"
	}
	if cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = "/usr/local/var/medsage/data/models/bge-small-en-v1.5.vocab.txt"
	}
	if cfg.Embedding.OutputName == "" {
		cfg.Embedding.OutputName = "sentence_embedding"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "qdrant"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "Health_QA_CoT"
	}
	if cfg.VectorStore.Distance == "" {
		cfg.VectorStore.Distance = "cosine"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
		cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "gemini"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.Model = "sonar"
		default:
			cfg.LLM.Model = "gemini-2.5-flash"
		}
	}
	if cfg.LLM.APIKeyEnv == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKeyEnv = "PERPLEXITY_API_KEY"
		default:
			cfg.LLM.APIKeyEnv = "GOOGLE_API_KEY"
		}
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.MaxOutputTokens == 0 {
		cfg.LLM.MaxOutputTokens = 2048
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 30
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 400
	}
	if cfg.Retrieval.ChunkStride == 0 {
		cfg.Retrieval.ChunkStride = 350
	}
	if cfg.Retrieval.DefaultLimit == 0 {
		cfg.Retrieval.DefaultLimit = 5
	}
	if cfg.Retrieval.MaxLimit == 0 {
		cfg.Retrieval.MaxLimit = 50
	}
	if cfg.Retrieval.ConfidenceThreshold == nil {
		t := DefaultConfidenceThreshold
		cfg.Retrieval.ConfidenceThreshold = &t
	}
	if cfg.Retrieval.WeakContextChars == 0 {
		cfg.Retrieval.WeakContextChars = 3000
	}
	if cfg.Retrieval.GroundedContextChars == 0 {
		cfg.Retrieval.GroundedContextChars = 8000
	}
	if cfg.Retrieval.SuggestionContextChars == 0 {
		cfg.Retrieval.SuggestionContextChars = 4000
	}
	if cfg.Retrieval.PreviewChars == 0 {
		cfg.Retrieval.PreviewChars = 350
	}
	if cfg.Upload.AllowedExtensions == nil {
		cfg.Upload.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	}
	if cfg.Upload.MedicalKeywords == nil {
		cfg.Upload.MedicalKeywords = append([]string(nil), DefaultMedicalKeywords...)
	}
	if cfg.Upload.MaxBytes == 0 {
		cfg.Upload.MaxBytes = 50 << 20
	}
	if cfg.Upload.SummaryContextChars == 0 {
		cfg.Upload.SummaryContextChars = 9000
	}
	if cfg.Consult.TopK == 0 {
		cfg.Consult.TopK = 5
	}
	if cfg.Consult.Domain == "" {
		cfg.Consult.Domain = "Healthcare"
	}
	if cfg.Consult.HNSWEf == 0 {
		cfg.Consult.HNSWEf = 64
	}
	if cfg.Cases.BatchSize == 0 {
		cfg.Cases.BatchSize = 64
	}
	if cfg.Cases.MaxTextChars == 0 {
		cfg.Cases.MaxTextChars = 3000
	}
	if cfg.Cases.SliceChars == 0 {
		cfg.Cases.SliceChars = 2500
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
