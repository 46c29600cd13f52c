package telco

import (
	"context"
	"fmt"
	"sync"
)

// MockAPI implements API for testing. Responses are scripted per method;
// every call is recorded.
type MockAPI struct {
	mu sync.Mutex

	CreateCallID  string
	CreateCallErr error

	// CreateCallHook, when set, runs after the call is recorded and before
	// the scripted result is returned. It runs without the mock's lock held
	// so tests can interleave other API calls mid-dial.
	CreateCallHook func()

	Status    CallStatus
	StatusErr error

	HangupErr error

	SendID  string
	SendErr error

	// Inbound holds one batch per ListInbound call; when exhausted the
	// last batch repeats. InboundErr, when set, fails every call.
	Inbound    [][]InboundMessage
	InboundErr error

	createCalls []string
	statusCalls []string
	hangupCalls []string
	sendCalls   []string
	listCalls   int
}

// CreateCall returns the scripted call control ID.
func (m *MockAPI) CreateCall(ctx context.Context, to string) (string, error) {
	m.mu.Lock()
	m.createCalls = append(m.createCalls, to)
	hook := m.CreateCallHook
	id, err := m.CreateCallID, m.CreateCallErr
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return "", err
	}
	if id == "" {
		return "call-1", nil
	}
	return id, nil
}

// CallStatus returns the scripted status.
func (m *MockAPI) CallStatus(ctx context.Context, callID string) (CallStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, callID)
	if m.StatusErr != nil {
		return CallStatus{}, m.StatusErr
	}
	return m.Status, nil
}

// Hangup records the call and returns the scripted error.
func (m *MockAPI) Hangup(ctx context.Context, callID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hangupCalls = append(m.hangupCalls, callID)
	return m.HangupErr
}

// SendMessage records the destination and returns the scripted message ID.
func (m *MockAPI) SendMessage(ctx context.Context, to, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = append(m.sendCalls, to)
	if m.SendErr != nil {
		return "", m.SendErr
	}
	if m.SendID == "" {
		return fmt.Sprintf("msg-%d", len(m.sendCalls)), nil
	}
	return m.SendID, nil
}

// ListInbound returns the next scripted batch.
func (m *MockAPI) ListInbound(ctx context.Context) ([]InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.InboundErr != nil {
		return nil, m.InboundErr
	}
	if len(m.Inbound) == 0 {
		return nil, nil
	}
	idx := m.listCalls - 1
	if idx >= len(m.Inbound) {
		idx = len(m.Inbound) - 1
	}
	return m.Inbound[idx], nil
}

// HangupCalls returns a copy of the call IDs hangup was issued for.
func (m *MockAPI) HangupCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.hangupCalls))
	copy(out, m.hangupCalls)
	return out
}

// StatusCalls returns how many times CallStatus was queried.
func (m *MockAPI) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.statusCalls)
}

// ListCalls returns how many times ListInbound was invoked.
func (m *MockAPI) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// SendCalls returns a copy of the destinations SendMessage was asked for.
func (m *MockAPI) SendCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sendCalls))
	copy(out, m.sendCalls)
	return out
}
