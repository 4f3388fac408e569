package generate

import (
	"context"
	"sync"

	"github.com/go-go-golems/arbor/pkg/conversation"
)

// ExecutionHandle represents one in-flight generation. It is cancelable and
// waitable.
type ExecutionHandle struct {
	RunID       string
	UserID      conversation.NodeID
	AssistantID conversation.NodeID

	done chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	out    *Result
	err    error
}

func newExecutionHandle(runID string, userID, assistantID conversation.NodeID, cancel context.CancelFunc) *ExecutionHandle {
	return &ExecutionHandle{
		RunID:       runID,
		UserID:      userID,
		AssistantID: assistantID,
		done:        make(chan struct{}),
		cancel:      cancel,
	}
}

func (h *ExecutionHandle) setResult(out *Result, err error) {
	h.mu.Lock()
	h.out = out
	h.err = err
	close(h.done)
	h.cancel = nil
	h.mu.Unlock()
}

// Cancel aborts the stream. The text received so far stays in the node.
func (h *ExecutionHandle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *ExecutionHandle) Wait() (*Result, error) {
	if h == nil {
		return nil, ErrExecutionHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.out, h.err
}

func (h *ExecutionHandle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
