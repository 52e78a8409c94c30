package registration

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/open-policy-agent/opa/rego"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

// PolicyQuery is the rule a registration policy must define. It evaluates to
// an object {"accept": bool, "ven_id": string, "registration_id": string}.
const PolicyQuery = "data.oadr.registration.decision"

// Policy decides with a rego module. The registration request is the input document.
type Policy struct {
	query rego.PreparedEvalQuery
}

// NewPolicy compiles a rego module given as source.
func NewPolicy(ctx context.Context, filename, module string) (*Policy, error) {
	r := rego.New(
		rego.Query(PolicyQuery),
		rego.Module(filename, module),
		rego.StrictBuiltinErrors(true),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, errl.Errorf("failed to compile registration policy: %w", err)
	}
	return &Policy{query: prepared}, nil
}

// NewPolicyFromFile compiles the rego module at path.
func NewPolicyFromFile(ctx context.Context, path string) (*Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errl.Errorf("failed to read registration policy: %w", err)
	}
	return NewPolicy(ctx, path, string(src))
}

func (p *Policy) Decide(ctx context.Context, req models.RegistrationRequest) (Decision, error) {
	input, err := toInput(req)
	if err != nil {
		return Decision{}, err
	}

	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, errl.Errorf("failed to evaluate registration policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// Undefined decision
		return Decision{}, nil
	}

	dec, err := decodeDecision(results[0].Expressions[0].Value)
	if err != nil {
		return Decision{}, err
	}
	if !dec.Accepted {
		return Decision{}, nil
	}
	if dec.RegistrationID == "" {
		dec.RegistrationID = uuid.NewString()
	}
	return dec, nil
}

// toInput converts the request into the generic document rego expects.
func toInput(req models.RegistrationRequest) (map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errl.Errorf("failed to encode policy input: %w", err)
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, errl.Errorf("failed to encode policy input: %w", err)
	}
	return input, nil
}

func decodeDecision(value any) (Decision, error) {
	if _, ok := value.(map[string]any); !ok {
		return Decision{}, errors.New("registration policy must evaluate to an object")
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return Decision{}, errl.Errorf("failed to decode policy decision: %w", err)
	}
	var dec Decision
	if err := json.Unmarshal(payload, &dec); err != nil {
		return Decision{}, errl.Errorf("failed to decode policy decision: %w", err)
	}
	return dec, nil
}
