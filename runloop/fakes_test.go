package runloop

import (
	"context"
)

// Function-field fakes for the collaborator interfaces.

type fakeGenerator struct {
	generate func(ctx context.Context, messages []Message, instructions string) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, messages []Message, instructions string) (string, error) {
	return f.generate(ctx, messages, instructions)
}

type fakeEmbedder struct {
	embed func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embed != nil {
		return f.embed(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSearcher struct {
	search func(ctx context.Context, vector []float32, topK int) ([]ContextChunk, error)
}

func (f *fakeSearcher) Search(ctx context.Context, vector []float32, topK int) ([]ContextChunk, error) {
	return f.search(ctx, vector, topK)
}

type fakeRouter struct {
	route func(ctx context.Context, message string, chunks []ContextChunk) (RouteDecision, error)
}

func (f *fakeRouter) Route(ctx context.Context, message string, chunks []ContextChunk) (RouteDecision, error) {
	return f.route(ctx, message, chunks)
}

type fakeJudge struct {
	judge func(ctx context.Context, response, contextText string) (Judgment, error)
}

func (f *fakeJudge) Judge(ctx context.Context, response, contextText string) (Judgment, error) {
	return f.judge(ctx, response, contextText)
}

type fakeExtractor struct {
	extract func(ctx context.Context, text string) ([]ExtractedNote, error)
}

func (f *fakeExtractor) ExtractStructured(ctx context.Context, text string) ([]ExtractedNote, error) {
	return f.extract(ctx, text)
}

// echoGenerator always succeeds with a fixed response.
func echoGenerator(response string) *fakeGenerator {
	return &fakeGenerator{
		generate: func(ctx context.Context, messages []Message, instructions string) (string, error) {
			return response, nil
		},
	}
}

// passingJudge approves everything at the given score.
func passingJudge(score float64) *fakeJudge {
	return &fakeJudge{
		judge: func(ctx context.Context, response, contextText string) (Judgment, error) {
			return Judgment{Score: score}, nil
		},
	}
}
