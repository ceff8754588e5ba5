package service

import (
	"context"
	"encoding/base64"
	"iter"
	"strings"
	"sync"

	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/store"
	"github.com/doclens/doclens/pkg/synthesis"
)

// pngImage is a tiny valid data: URI.
var pngImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))

type scriptedCompleter struct {
	mu sync.Mutex

	chunks    []string
	streamErr error
	stream    func(ctx context.Context, req synthesis.Request) iter.Seq2[string, error]

	generate     func(prompt string) (string, error)
	generateJSON func(prompt string) (string, error)

	requests []synthesis.Request
	prompts  []string
}

func (f *scriptedCompleter) Stream(ctx context.Context, req synthesis.Request) iter.Seq2[string, error] {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	custom := f.stream
	chunks := append([]string(nil), f.chunks...)
	streamErr := f.streamErr
	f.mu.Unlock()

	if custom != nil {
		return custom(ctx, req)
	}
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

func (f *scriptedCompleter) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	gen := f.generate
	f.mu.Unlock()
	if gen == nil {
		return "", nil
	}
	return gen(prompt)
}

func (f *scriptedCompleter) GenerateJSON(_ context.Context, prompt string, _ *synthesis.Schema) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	gen := f.generateJSON
	f.mu.Unlock()
	if gen == nil {
		return "{}", nil
	}
	return gen(prompt)
}

func (f *scriptedCompleter) lastRequest() synthesis.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return synthesis.Request{}
	}
	return f.requests[len(f.requests)-1]
}

func (f *scriptedCompleter) promptsContaining(s string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.prompts {
		if strings.Contains(p, s) {
			out = append(out, p)
		}
	}
	return out
}

// lastTurnText is the text of the final user turn of a request.
func lastTurnText(req synthesis.Request) string {
	if len(req.Turns) == 0 {
		return ""
	}
	return req.Turns[len(req.Turns)-1].Text
}

type fakeEditor struct {
	parts       []synthesis.Part
	err         error
	instruction string
}

func (f *fakeEditor) EditImage(_ context.Context, _ synthesis.Image, instruction string) ([]synthesis.Part, error) {
	f.instruction = instruction
	return f.parts, f.err
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func record(e *event.Emitter) *recorder {
	r := &recorder{}
	e.OnAny(func(ev event.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) named(name string) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, ev := range r.events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

func newMemoryStore() *store.ConversationStore {
	return store.NewConversationStore(store.NewMemoryBackend())
}
