// Package searcher routes queries over the indexed corpora.
//
// A query is classified by a table of lexical intents (see Intents). Each
// intent captures an anchor name and lists the typed edge hops to walk from
// it:
//
//	"what drops from goblin"  ->  Goblin -DROPS_ON_DEATH-> table -DROPS_ITEM-> items
//	"what uses wood stick"    ->  Wood_Stick <-REQUIRES_ITEM- items
//
// Routing:
//
//   - Semantic: no intent matched. The query is embedded and a top-K search
//     runs against the vector index of every requested corpus.
//   - Structural: an intent matched and its anchor resolved. Results are the
//     nodes reached by the last hop, ranked by traversal order.
//   - Hybrid: an intent matched and the query also asks for an explanation
//     ("why", "how does", "explain"). Both legs run concurrently.
//
// An anchor that resolves to nothing falls back to the semantic route.
//
// # Reciprocal Rank Fusion (RRF)
//
// Every route scores its lists with RRF, so scores are comparable:
//
//	score(d) = Σ 1/(k + rank_i(d))    k = 60
//
// A node that appears in both legs of a hybrid query accumulates both terms
// and is reported with source "hybrid".
//
// # Basic Usage
//
//	s, err := searcher.New(store, emb, vectors, searcher.Options{})
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Text:    "what drops from goblin",
//	    Corpora: []types.Corpus{types.CorpusGamedata},
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s %v\n", r.Rank, r.DisplayName, r.Path)
//	}
//
// Results are cached in an LRU keyed by the normalized request. Call
// Invalidate after an indexing pass.
package searcher
