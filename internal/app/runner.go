package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/NodePath81/simstat/internal/config"
	"github.com/NodePath81/simstat/internal/cwnd"
	"github.com/NodePath81/simstat/internal/flowmon"
	"github.com/NodePath81/simstat/internal/meanerr"
	"github.com/NodePath81/simstat/internal/report"
	"github.com/NodePath81/simstat/internal/util"
	"github.com/google/uuid"
)

// Runner executes the analyses enabled in a config, one after the other.
type Runner struct {
	cfg    config.Config
	logger util.Logger
	runID  string
	now    func() time.Time
}

func NewRunner(cfg config.Config, logger util.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: logger,
		runID:  uuid.New().String(),
		now:    time.Now,
	}
}

func (r *Runner) RunID() string {
	return r.runID
}

// Run executes every enabled analysis and returns the combined report.
// The first failing analysis aborts the run.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	if !r.cfg.AnyEnabled() {
		return nil, fmt.Errorf("no analysis configured: set %s, %s or %s", config.EnvCwndFile, config.EnvFlowmonFile, config.EnvLogFile)
	}
	logger := r.logger.With("run_id", r.runID)
	rep := report.New(r.runID, r.now())

	steps := []struct {
		name    string
		enabled bool
		file    string
		run     func() error
	}{
		{"cwnd", r.cfg.Cwnd.IsEnabled(), r.cfg.Cwnd.File, func() error {
			res, err := cwnd.AverageFile(r.cfg.Cwnd.File, cwnd.Options{SegmentSize: r.cfg.Cwnd.SegmentSizeBytes()})
			if err != nil {
				return err
			}
			rep.SetCwnd(res)
			return nil
		}},
		{"flowmon", r.cfg.Flowmon.IsEnabled(), r.cfg.Flowmon.File, func() error {
			sum, err := flowmon.SummarizeFile(r.cfg.Flowmon.File, flowmon.Options{
				Protocol:   *r.cfg.Flowmon.Protocol,
				MinPackets: *r.cfg.Flowmon.MinPackets,
				Logger:     logger,
			})
			if err != nil {
				return err
			}
			rep.SetFlowmon(sum)
			return nil
		}},
		{"meanerr", r.cfg.MeanErr.IsEnabled(), r.cfg.MeanErr.File, func() error {
			res, err := meanerr.AggregateFile(r.cfg.MeanErr.File, meanerr.Options{
				MinWeight: *r.cfg.MeanErr.MinWeight,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			rep.SetMeanErr(res)
			return nil
		}},
	}

	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		logger.Debug("analysis started", "analysis", step.name, "file", step.file)
		if err := step.run(); err != nil {
			logger.Debug("analysis failed", "analysis", step.name, "file", step.file, "error", err)
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
		logger.Info("analysis complete", "analysis", step.name, "file", step.file, "elapsed", time.Since(start))
	}
	return rep, nil
}

// Emit writes rep to w in the configured format and, when configured,
// to the Prometheus textfile.
func (r *Runner) Emit(w io.Writer, rep *report.Report) error {
	var err error
	switch r.cfg.Output.Format {
	case config.FormatJSON:
		err = report.WriteJSON(w, rep)
	default:
		err = report.WriteText(w, rep)
	}
	if err != nil {
		return err
	}
	if path := r.cfg.Output.PromFile; path != "" {
		if err := report.WriteTextfile(path, rep); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		r.logger.Debug("prometheus textfile written", "run_id", r.runID, "path", path)
	}
	return nil
}
