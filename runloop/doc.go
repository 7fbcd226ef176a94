// Package runloop implements the bounded agent execution loop: the control
// cycle that carries one request from context loading through tool execution,
// response generation, verification, and bounded refinement.
//
// The loop is an explicit state machine. Each request moves through the
// phases LoadContext, GatherContext, TakeAction, GenerateResponse, Verify,
// and Refine, ending in Done or Failed. Only structural errors (a cyclic tool
// plan) fail a request; every external collaborator failure degrades locally
// instead: compaction falls back to hard truncation, verification fails open,
// note extraction falls back to keyword rules, and context loading returns an
// empty set.
//
// # Architecture
//
//   - Loop: The top-level orchestrator holding conversation state, phase,
//     and the per-request attempt counter.
//   - ContextLoader: Budgeted semantic-context retrieval with an LRU cache.
//     Loops given the same loader through Collaborators.Loader share one
//     cache; otherwise each loop builds its own.
//   - Compactor: Threshold-driven conversation summarization.
//   - Dispatcher: Topological-wave execution of a tool dependency DAG with
//     bounded concurrency.
//   - NoteExtractor: Structured note extraction with a deterministic
//     rule-based fallback.
//   - Verifier and RefinementController: LLM-as-judge scoring and the
//     bounded regenerate-with-feedback sub-loop.
//   - EventEmitter: Typed event stream for host application integration.
//
// External collaborators (response generation, embedding, search, routing,
// judging, structured extraction) are narrow single-method interfaces
// declared in this package and injected by the host; the llmcollab package
// provides gollm-backed implementations.
//
// # Quick Start
//
//	registry := runloop.NewToolRegistry()
//	registry.Register("lookup", lookupExec)
//
//	loop := runloop.NewLoop(runloop.Collaborators{
//	    Generator: gen,
//	    Embedder:  emb,
//	    Searcher:  search,
//	    Router:    router,
//	    Judge:     judge,
//	    Extractor: extractor,
//	}, registry, nil)
//	defer loop.Close()
//
//	result, err := loop.Run(ctx, runloop.Request{Message: "summarize the incident"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.ResponseText)
package runloop
