package ops

import (
	"github.com/hpungsan/fern/internal/blockctx"
	"github.com/hpungsan/fern/internal/document"
	"github.com/hpungsan/fern/internal/errors"
	"github.com/hpungsan/fern/internal/mathconv"
)

// ConvertInput contains parameters for the Convert operation.
type ConvertInput struct {
	TextInput
}

// ConvertOutput contains the result of the Convert operation.
type ConvertOutput struct {
	Prefix  string `json:"prefix"`
	Suffix  string `json:"suffix"`
	Context string `json:"context"`
}

// Convert rewrites native math delimiters around the cursor to canonical ones.
func Convert(input ConvertInput) (*ConvertOutput, error) {
	split, err := input.Split()
	if err != nil {
		return nil, err
	}

	converted := mathconv.Convert(split)
	return &ConvertOutput{
		Prefix:  converted.Prefix,
		Suffix:  converted.Suffix,
		Context: blockctx.Classify(split.Prefix, split.Suffix).String(),
	}, nil
}

// RevertInput contains parameters for the Revert operation.
type RevertInput struct {
	Completion string
	// Prefix is the converted prefix the completion was generated for.
	Prefix string
	// Context is a context name; empty means Text.
	Context string
}

// RevertOutput contains the result of the Revert operation.
type RevertOutput struct {
	Completion string `json:"completion"`
}

// Revert maps canonical math delimiters in a completion back to native syntax.
func Revert(input RevertInput) (*RevertOutput, error) {
	c := blockctx.Text
	if input.Context != "" {
		var ok bool
		c, ok = blockctx.Parse(input.Context)
		if !ok {
			return nil, errors.NewInvalidRequest("unknown context: " + input.Context)
		}
	}

	out := mathconv.Reverse(input.Completion, document.New(input.Prefix, ""), c)
	return &RevertOutput{Completion: out}, nil
}
