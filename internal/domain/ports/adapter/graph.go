package adapter

import (
	"context"
	"encoding/json"
)

type OperationKind string

const (
	KindQuery        OperationKind = "query"
	KindMutation     OperationKind = "mutation"
	KindSubscription OperationKind = "subscription"
)

// Operation is one named GraphQL document plus its variables. The (Name,
// Variables) pair also keys the client-side result cache.
type Operation struct {
	Name      string
	Kind      OperationKind
	Document  string
	Variables map[string]any
}

// GraphError is a backend-reported error entry from the "errors" array.
type GraphError struct {
	Message string `json:"message"`
}

func (e GraphError) Error() string { return e.Message }

// Result is one response payload, either from the request/response channel or
// pushed over the streaming channel. Data may be present alongside Errors.
type Result struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphError    `json:"errors,omitempty"`
}

// Err folds the errors array into a single error, or nil.
func (r *Result) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// GraphQLClient is the transport seam: Execute covers one-shot queries and
// mutations, Subscribe covers long-lived server-push operations. Subscribe
// returns a cancel func that tears down only that subscription, never the
// shared connection underneath it.
type GraphQLClient interface {
	Execute(ctx context.Context, op Operation) (*Result, error)
	Subscribe(ctx context.Context, op Operation, onNext func(*Result)) (cancel func(), err error)
}
