package llm

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scripted Client for tests and offline runs. Responses are
// consumed in order; once the script runs out, Complete echoes the
// last user message so ad hoc sessions keep working.
type Mock struct {
	mu       sync.Mutex
	script   []Response
	err      error
	Requests [][]Message
}

// NewMock returns a Mock that will serve the given responses in order.
func NewMock(script ...Response) *Mock {
	return &Mock{script: script}
}

// Fail makes every subsequent Complete return err.
func (m *Mock) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *Mock) Complete(ctx context.Context, messages []Message, _ []ToolDef) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, append([]Message(nil), messages...))
	if m.err != nil {
		return nil, m.err
	}

	if len(m.script) > 0 {
		resp := m.script[0]
		m.script = m.script[1:]
		return &resp, nil
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return &Response{Text: fmt.Sprintf("echo: %s", messages[i].Content)}, nil
		}
	}
	return &Response{Text: "echo"}, nil
}
