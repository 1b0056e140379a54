// Package searcher assembles the hindex read path behind a single handle.
//
// A Searcher embeds query text with the same model configuration used at
// index time and retrieves the nearest chunks from the Qdrant collection:
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    return err
//	}
//	sr, err := searcher.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer sr.Close()
//
//	results, err := sr.Search(ctx, "ferry costs", searcher.SearchOptions{
//	    Filter: vector.Filter{"source_name": "costs.csv"},
//	})
//
// SearchOptions.TopK falls back to the config's query.top_k when zero, so
// most callers pass the zero value.
//
// # Sharing backends
//
// A process that both serves queries and re-indexes should hold one Qdrant
// client and one embedder. WithStore and WithEmbedder inject such shared
// backends; Close leaves injected backends open and only closes the ones
// the Searcher built itself. Store, Embedder, and Engine expose the
// assembled components for servers that mount them directly.
package searcher
