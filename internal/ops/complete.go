package ops

import (
	"context"

	"github.com/hpungsan/fern/internal/lifecycle"
)

// CompleteInput contains parameters for the Complete operation.
type CompleteInput struct {
	TextInput
}

// CompleteOutput contains the result of the Complete operation.
type CompleteOutput struct {
	RequestID    string `json:"request_id"`
	Context      string `json:"context"`
	State        string `json:"state"`
	Completion   string `json:"completion"`
	SuggestionID string `json:"suggestion_id,omitempty"`
	Notice       string `json:"notice,omitempty"`
}

// Complete starts a prediction on the session and waits for it to resolve.
// A prediction that fails leaves the session Idle with a notice; that is
// reported in the output rather than as an error.
func Complete(ctx context.Context, m *lifecycle.Machine, input CompleteInput) (*CompleteOutput, error) {
	split, err := input.Split()
	if err != nil {
		return nil, err
	}

	req, err := m.Start(ctx, split.Prefix, split.Suffix)
	if err != nil {
		return nil, err
	}

	s, err := m.Await(ctx, req.ID)
	if err != nil {
		m.CancelKey()
		return nil, err
	}

	out := &CompleteOutput{
		RequestID: req.ID,
		Context:   req.Context.String(),
		State:     s.Kind.String(),
		Notice:    s.Notice,
	}
	if s.Kind == lifecycle.Suggesting && s.Request != nil && s.Request.ID == req.ID {
		out.Completion = s.Text
		out.SuggestionID = s.SuggestionID
	}
	return out, nil
}
