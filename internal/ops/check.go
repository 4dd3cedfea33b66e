package ops

import (
	"context"
	"slices"
	"strings"
)

// ModelLister lists the models a backend serves. *backend.Client implements it.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// CheckInput contains parameters for the Check operation.
type CheckInput struct {
	Host  string
	Model string
}

// CheckOutput contains the result of the Check operation.
type CheckOutput struct {
	Host           string   `json:"host"`
	Reachable      bool     `json:"reachable"`
	Models         []string `json:"models"`
	Model          string   `json:"model,omitempty"`
	ModelAvailable bool     `json:"model_available"`
	Message        string   `json:"message"`
}

// Check verifies the backend is reachable and serves the configured model.
// An unreachable backend is reported in the output, not as an error.
func Check(ctx context.Context, lister ModelLister, input CheckInput) (*CheckOutput, error) {
	out := &CheckOutput{Host: input.Host, Model: input.Model, Models: []string{}}

	models, err := lister.ListModels(ctx)
	if err != nil {
		out.Message = "Backend unreachable: " + err.Error()
		return out, nil
	}
	out.Reachable = true
	out.Models = models

	switch {
	case input.Model == "":
		out.Message = "Backend reachable; no model configured"
	case hasModel(models, input.Model):
		out.ModelAvailable = true
		out.Message = "Backend reachable; model available"
	default:
		out.Message = "Backend reachable; model not installed: " + input.Model
	}
	return out, nil
}

// hasModel matches names with or without the ":latest" tag.
func hasModel(models []string, want string) bool {
	return slices.ContainsFunc(models, func(m string) bool {
		return m == want || strings.TrimSuffix(m, ":latest") == want
	})
}
