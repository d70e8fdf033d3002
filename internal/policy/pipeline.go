package policy

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/lessucettes/adresu-wordguard/internal/config"
)

const msgInternalError = "internal: an unexpected error occurred"

type MetricsCollector interface {
	Report(res FilterResult)
}

type PipelineStage struct {
	Filter Filter
}

// Pipeline runs a submission through its stages in order and stops at the
// first rejection.
type Pipeline struct {
	stages            []PipelineStage
	rejectionHandlers []RejectionHandler
	rejectionLevels   map[string]config.LogLevel
	collector         MetricsCollector
	wg                sync.WaitGroup
}

func NewPipeline(
	cfg *config.Config,
	stages []PipelineStage,
	handlers []RejectionHandler,
	collector MetricsCollector,
) *Pipeline {
	return &Pipeline{
		stages:            stages,
		rejectionHandlers: handlers,
		rejectionLevels:   cfg.Log.RejectionLevels,
		collector:         collector,
	}
}

// ProcessSubmission returns the verdict for sub. A submission without an ID
// is assigned a random one. In dry-run mode rejections are logged and the
// submission is accepted, with the validation errors still attached.
func (p *Pipeline) ProcessSubmission(
	ctx context.Context,
	sub *Submission,
	dryRun bool,
) (response PolicyResponse, err error) {
	p.wg.Add(1)
	defer p.wg.Done()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in filter pipeline",
				"panic", r, "submission_id", sub.ID, "author", sub.Author, "stack", string(debug.Stack()),
			)
			response = PolicyResponse{ID: sub.ID, Action: ActionReject, Msg: msgInternalError}
			err = nil
		}
	}()

	response = PolicyResponse{ID: sub.ID, Action: ActionAccept}

	for _, stage := range p.stages {
		res, filterErr := stage.Filter.Match(ctx, sub)
		if filterErr != nil {
			slog.Error("Filter execution failed", "error", filterErr, "filter_name", res.Filter, "submission_id", sub.ID)
			return PolicyResponse{ID: sub.ID, Action: ActionReject, Msg: "internal: error in filter " + res.Filter}, filterErr
		}

		if p.collector != nil {
			p.collector.Report(res)
		}

		if res.Outcome != nil {
			response.Errors = res.Outcome.Errors
			response.Warnings = res.Outcome.Warnings
			response.Scan = res.Outcome.Scan
		}

		if !res.Allowed {
			logAttrs := []slog.Attr{
				slog.String("filter_name", res.Filter),
				slog.String("remote_ip", sub.IP),
				slog.String("submission_id", sub.ID),
				slog.String("content_type", string(sub.ContentType)),
				slog.String("author", sub.Author),
				slog.String("reason", res.Reason),
			}
			logLevel := slog.LevelWarn
			if level, ok := p.rejectionLevels[res.Filter]; ok {
				logLevel = level.ToSlogLevel()
			}
			slog.LogAttrs(ctx, logLevel, "Submission rejected by filter", logAttrs...)

			if dryRun {
				slog.LogAttrs(ctx, slog.LevelInfo, "Dry-run: Submission would be rejected", logAttrs...)
				return response, nil
			}

			for _, handler := range p.rejectionHandlers {
				handler.HandleRejection(ctx, sub, res.Filter)
			}

			response.Action = ActionReject
			response.Msg = res.Reason
			return response, nil
		}
	}

	slog.Debug("Submission accepted by all filters", "submission_id", sub.ID, "content_type", sub.ContentType)
	return response, nil
}

// Close waits for in-flight submissions, then closes every stage that has
// a Close method.
func (p *Pipeline) Close() error {
	p.wg.Wait()

	for _, stage := range p.stages {
		if closer, ok := stage.Filter.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				slog.Error("Failed to close a filter component", "filter", stage.Filter, "error", err)
			}
		}
	}
	return nil
}
