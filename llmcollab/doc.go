// Package llmcollab provides gollm-backed implementations of the runloop
// collaborator interfaces (github.com/teilomillet/gollm).
//
// # Architecture
//
// The package is layered:
//
//   - Client: a thin wrapper over gollm.LLM with retry and error classification
//   - Collaborators: Generator, Judge, Router, and Extractor built on Client
//   - Parsing: tolerant JSON extraction from model output
//
// Embedding and semantic search are not covered here; hosts plug their own
// vector store behind the runloop.Embedder and runloop.Searcher interfaces.
//
// # Quick Start
//
//	client, _ := llmcollab.NewClient("anthropic", os.Getenv("ANTHROPIC_API_KEY"))
//
//	loop := runloop.NewLoop(runloop.Collaborators{
//	    Generator: llmcollab.NewGenerator(client, "You are a helpful assistant."),
//	    Router:    llmcollab.NewRouter(client, registry),
//	    Judge:     llmcollab.NewJudge(client),
//	    Extractor: llmcollab.NewExtractor(client),
//	}, registry, nil)
//
//	result, err := loop.Run(ctx, runloop.Request{Message: "Hello"})
package llmcollab
