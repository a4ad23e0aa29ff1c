package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/internal/dedup"
	"github.com/PaliC/popcorn-data-utils/pkg/rpc"
	"github.com/PaliC/popcorn-data-utils/pkg/wire"
)

// defaultListLimit bounds ListRuns when the request leaves Limit at zero.
const defaultListLimit = 20

// RegisterRPC exposes the runner's control surface on the RPC server.
func RegisterRPC(server *rpc.Server, runner *Runner) {
	server.Register("Dedup.Health", func(ctx context.Context, req json.RawMessage) (any, error) {
		return &wire.HealthCheckResponse{Status: "SERVING"}, nil
	})

	server.Register("Dedup.TriggerRun", func(ctx context.Context, req json.RawMessage) (any, error) {
		var trigger wire.TriggerRunRequest
		if len(req) > 0 {
			if err := json.Unmarshal(req, &trigger); err != nil {
				return nil, fmt.Errorf("decoding trigger request: %w", err)
			}
		}

		runID, err := runner.TriggerRun(ctx, mergeParams(runner.Defaults(), trigger))
		if err != nil {
			return nil, err
		}
		return &wire.TriggerRunResponse{RunID: runID, Status: corpus.RunRunning}, nil
	})

	server.Register("Dedup.RunStatus", func(ctx context.Context, req json.RawMessage) (any, error) {
		var status wire.RunStatusRequest
		if err := json.Unmarshal(req, &status); err != nil {
			return nil, fmt.Errorf("decoding status request: %w", err)
		}
		if status.RunID == "" {
			return nil, fmt.Errorf("run_id is required")
		}

		run, err := runner.RunStatus(ctx, status.RunID)
		if err != nil {
			return nil, err
		}
		return toSummary(*run), nil
	})

	server.Register("Dedup.ListRuns", func(ctx context.Context, req json.RawMessage) (any, error) {
		var list wire.ListRunsRequest
		if len(req) > 0 {
			if err := json.Unmarshal(req, &list); err != nil {
				return nil, fmt.Errorf("decoding list request: %w", err)
			}
		}
		limit := int(list.Limit)
		if limit <= 0 {
			limit = defaultListLimit
		}

		runs, err := runner.ListRuns(ctx, limit)
		if err != nil {
			return nil, err
		}
		resp := &wire.ListRunsResponse{Runs: make([]wire.RunSummary, 0, len(runs))}
		for _, run := range runs {
			resp.Runs = append(resp.Runs, *toSummary(run))
		}
		return resp, nil
	})
}

// mergeParams overlays the non-zero fields of a trigger request onto the
// worker defaults.
func mergeParams(defaults dedup.Params, req wire.TriggerRunRequest) dedup.Params {
	params := defaults
	if req.NgramSize > 0 {
		params.NgramSize = int(req.NgramSize)
	}
	if req.Bands > 0 {
		params.Bands = int(req.Bands)
	}
	if req.RowsPerBand > 0 {
		params.RowsPerBand = int(req.RowsPerBand)
	}
	if req.Threshold > 0 {
		params.Threshold = req.Threshold
	}
	return params
}

func toSummary(run corpus.Run) *wire.RunSummary {
	summary := &wire.RunSummary{
		RunID:        run.ID,
		Status:       run.Status,
		NgramSize:    int32(run.NgramSize),
		Bands:        int32(run.Bands),
		RowsPerBand:  int32(run.RowsPerBand),
		Threshold:    run.Threshold,
		TotalDocs:    int64(run.TotalDocs),
		ExactDropped: int64(run.ExactDropped),
		NearDropped:  int64(run.NearDropped),
		Kept:         int64(run.Kept),
		StartedAt:    run.StartedAt.Unix(),
		DurationMs:   run.Duration().Milliseconds(),
	}
	if !run.FinishedAt.IsZero() {
		summary.FinishedAt = run.FinishedAt.Unix()
	}
	return summary
}
