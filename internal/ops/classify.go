package ops

import (
	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/pipeline"
)

// ClassifyInput contains parameters for the Classify operation.
type ClassifyInput struct {
	TextInput
	// SystemMessage is the base system prompt to show the full prompt for.
	// Empty omits the prompt from the output.
	SystemMessage string
}

// ClassifyOutput contains the result of the Classify operation.
type ClassifyOutput struct {
	Context       string `json:"context"`
	SystemMessage string `json:"system_message,omitempty"`
}

// Classify reports the markdown block context at the cursor.
func Classify(input ClassifyInput) (*ClassifyOutput, error) {
	split, err := input.Split()
	if err != nil {
		return nil, err
	}

	c := blockctx.Classify(split.Prefix, split.Suffix)
	out := &ClassifyOutput{Context: c.String()}
	if input.SystemMessage != "" {
		out.SystemMessage = pipeline.SystemMessage(input.SystemMessage, c)
	}
	return out, nil
}
