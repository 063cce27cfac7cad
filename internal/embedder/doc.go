// Package embedder turns node embedding texts into vectors.
//
// Three providers are available: Jina and OpenAI over their HTTP
// embeddings APIs, and a deterministic offline "local" provider that hashes
// word and trigram features. Every provider reports a ProviderID and a
// Dimension; the vector index refuses to mix vectors across either.
//
// # Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	if err := emb.Validate(ctx); err != nil {
//	    return err
//	}
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
//
// Batches are capped at MaxBatchSize. HTTP calls retry with exponential
// backoff; once retries are exhausted the error wraps ErrProviderFailed.
//
// # Environment
//
//	LOREKEEPER_EMBEDDING_PROVIDER  jina | openai | local
//	JINA_API_KEY                   Jina API key
//	OPENAI_API_KEY                 OpenAI API key
//
// Without an explicit provider the first available API key wins, and the
// local provider is used when neither is set.
package embedder
