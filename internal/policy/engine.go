// Package policy evaluates upload policies with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/tgrelay/internal/domain"
)

// Decision values returned by the policy.
const (
	DecisionAllow  = "allow"
	DecisionReject = "reject"
)

// Limits are the per-kind size ceilings passed to the policy as input.
type Limits struct {
	ImageBytes int64 `json:"image"`
	FileBytes  int64 `json:"file"`
}

// Upload is the policy input for one attachment.
type Upload struct {
	Name   string           `json:"name"`
	Kind   domain.MediaKind `json:"kind"`
	Size   int64            `json:"size"`
	Limits Limits           `json:"limits"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine prepares the upload policy module.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.upload_policy.decision"),
		rego.Module("upload_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns the decision for one upload.
func (e *Engine) Evaluate(ctx context.Context, input Upload) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("unexpected policy result %v", results[0].Expressions[0].Value)
}

// DefaultPolicy rejects static and animated images over limits.image and every
// other kind over limits.file.
const DefaultPolicy = `
package upload_policy

default decision = "allow"

image_kinds = {"image", "gif"}

decision = "reject" {
	image_kinds[input.kind]
	input.size > input.limits.image
}

decision = "reject" {
	not image_kinds[input.kind]
	input.size > input.limits.file
}
`
