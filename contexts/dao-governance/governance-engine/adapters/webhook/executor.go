// Package webhook forwards passed governance decisions to an external
// execution endpoint over HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"agora/contexts/dao-governance/governance-engine/domain/entities"
	"agora/contexts/dao-governance/governance-engine/ports"
)

const maxResponseBytes = 64 << 10

// Executor POSTs the execution spec to a webhook URL and treats any 2xx
// response as a successful execution. The caller's context carries the
// execution deadline, so the adapter sets no timeout of its own.
type Executor struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewExecutor(url string, client *http.Client, logger *slog.Logger) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		url:    strings.TrimSpace(url),
		client: client,
		logger: logger,
	}
}

type executeRequest struct {
	TargetRef    string   `json:"target_ref"`
	FunctionName string   `json:"function_name"`
	Args         []string `json:"args,omitempty"`
}

type executeResponse struct {
	Reference string `json:"reference"`
	Output    string `json:"output"`
}

func (e *Executor) Execute(ctx context.Context, spec entities.ExecutionSpec) (ports.ExecutionOutcome, error) {
	body, err := json.Marshal(executeRequest{
		TargetRef:    strings.TrimSpace(spec.TargetRef),
		FunctionName: strings.TrimSpace(spec.FunctionName),
		Args:         spec.Args,
	})
	if err != nil {
		return ports.ExecutionOutcome{}, fmt.Errorf("encode execution request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return ports.ExecutionOutcome{}, fmt.Errorf("build execution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return ports.ExecutionOutcome{}, fmt.Errorf("execution request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return ports.ExecutionOutcome{}, fmt.Errorf("read execution response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		e.logger.Error("webhook execution rejected",
			"event", "governance_webhook_execute_rejected",
			"module", "dao-governance/governance-engine",
			"layer", "adapter",
			"status", resp.StatusCode,
			"target_ref", strings.TrimSpace(spec.TargetRef),
		)
		return ports.ExecutionOutcome{}, fmt.Errorf("execution endpoint returned %s", resp.Status)
	}

	outcome := ports.ExecutionOutcome{
		Success: true,
		Output:  strings.TrimSpace(string(raw)),
	}
	var decoded executeResponse
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if ref := strings.TrimSpace(decoded.Reference); ref != "" {
			outcome.ExternalReference = ref
		}
		if out := strings.TrimSpace(decoded.Output); out != "" {
			outcome.Output = out
		}
	}
	return outcome, nil
}

var _ ports.DecisionExecutor = (*Executor)(nil)
