package coordinator

import "context"

// ComputationEngine runs an MPC program over stored input shares and returns
// the id of the result secret. A returned error is the failure message.
type ComputationEngine interface {
	Execute(ctx context.Context, program []byte, cfg *ProviderConfig, shareIDs []string) (string, error)
}

// ComputationEngineFunc adapts a function to ComputationEngine.
type ComputationEngineFunc func(ctx context.Context, program []byte, cfg *ProviderConfig, shareIDs []string) (string, error)

func (f ComputationEngineFunc) Execute(ctx context.Context, program []byte, cfg *ProviderConfig, shareIDs []string) (string, error) {
	return f(ctx, program, cfg, shareIDs)
}

// OutputNotifier delivers an execution result to output-party endpoints.
// Delivery is best effort: implementations log failures and never retry.
type OutputNotifier interface {
	Notify(ctx context.Context, endpoints []string, result ExecutionResult)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, []string, ExecutionResult) {}
