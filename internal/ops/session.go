package ops

import (
	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/lifecycle"
)

// Acceptor records accepted suggestions. *db.Store implements it.
type Acceptor interface {
	MarkAccepted(id string) error
}

// AcceptOutput contains the result of the Accept operation.
type AcceptOutput struct {
	RequestID    string `json:"request_id"`
	Completion   string `json:"completion"`
	SuggestionID string `json:"suggestion_id,omitempty"`
}

// Accept takes the session's current suggestion. acc may be nil.
func Accept(m *lifecycle.Machine, acc Acceptor) (*AcceptOutput, error) {
	s, ok := m.Accept()
	if !ok {
		return nil, errors.NewInvalidRequest("no suggestion to accept")
	}

	if acc != nil && s.SuggestionID != "" {
		if err := acc.MarkAccepted(s.SuggestionID); err != nil {
			return nil, err
		}
	}

	return &AcceptOutput{
		RequestID:    s.Request.ID,
		Completion:   s.Text,
		SuggestionID: s.SuggestionID,
	}, nil
}

// CancelOutput contains the result of the Cancel operation.
type CancelOutput struct {
	Cancelled bool   `json:"cancelled"`
	State     string `json:"state"`
	Status    string `json:"status"`
}

// Cancel cancels the in-flight prediction or drops the current suggestion.
func Cancel(m *lifecycle.Machine) *CancelOutput {
	cancelled := m.CancelKey()
	return &CancelOutput{
		Cancelled: cancelled,
		State:     m.State().Kind.String(),
		Status:    m.StatusText(),
	}
}

// StatusOutput contains the result of the Status operation.
type StatusOutput struct {
	State     string `json:"state"`
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// Status reports the session state.
func Status(m *lifecycle.Machine) *StatusOutput {
	s := m.State()
	out := &StatusOutput{State: s.Kind.String(), Status: m.StatusText()}
	if s.Request != nil {
		out.RequestID = s.Request.ID
	}
	return out
}
