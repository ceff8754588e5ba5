package synthesis

import (
	"context"
	"iter"
	"sync"
)

type fakeCompleter struct {
	mu sync.Mutex

	chunks    []string
	streamErr error // yielded after chunks

	generate     func(prompt string) (string, error)
	generateJSON func(prompt string, s *Schema) (string, error)

	requests []Request
	prompts  []string
}

func (f *fakeCompleter) Stream(_ context.Context, req Request) iter.Seq2[string, error] {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	chunks := append([]string(nil), f.chunks...)
	streamErr := f.streamErr
	f.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if streamErr != nil {
			yield("", streamErr)
		}
	}
}

func (f *fakeCompleter) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.generate == nil {
		return "", nil
	}
	return f.generate(prompt)
}

func (f *fakeCompleter) GenerateJSON(_ context.Context, prompt string, s *Schema) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.generateJSON == nil {
		return "{}", nil
	}
	return f.generateJSON(prompt, s)
}

type fakeEditor struct {
	parts       []Part
	err         error
	instruction string
	image       Image
}

func (f *fakeEditor) EditImage(_ context.Context, img Image, instruction string) ([]Part, error) {
	f.image = img
	f.instruction = instruction
	return f.parts, f.err
}
