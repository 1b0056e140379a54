// Package indexer assembles the hindex write path behind a single handle.
//
// An Indexer owns everything one indexing pass needs: the source scanner,
// the chunker, the embeddings client, the Qdrant store, and the on-disk run
// state (manifest and run lock), all derived from one [config.Config].
// Callers embed it instead of wiring the internal packages themselves:
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    return err
//	}
//	ix, err := indexer.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer ix.Close()
//
//	files, err := ix.Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	report, err := ix.Run(ctx, files, indexer.RunOptions{PruneMissing: true})
//
// # Sharing backends
//
// A process that both indexes and serves queries should hold one Qdrant
// client and one embedder. WithStore and WithEmbedder inject such shared
// backends; Close leaves injected backends open and only closes the ones
// the Indexer built itself.
//
// # Locking
//
// Run and Watch take a file lock on the state directory for their duration,
// so an indexing CLI run and a server-triggered re-index against the same
// state directory fail fast instead of interleaving writes. Run acquires
// and releases per call; Watch holds the lock for the whole session.
package indexer
