package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/penreg/internal/fit"
	"github.com/cwbudde/penreg/internal/opt"
	"github.com/cwbudde/penreg/internal/penalty"
	"github.com/cwbudde/penreg/internal/store"
)

// progressInterval throttles progress events to a few per second.
var progressInterval = 500 * time.Millisecond

// runJob executes a fit job in the background. If resultStore is not nil
// the finished fit is saved under the job ID.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, jobID string) error {
	defer jm.clearCancel(jobID)

	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "optimizer", job.Config.Optimizer, "lambdas", job.Config.Lambdas)

	if ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		return ctx.Err()
	}

	m, err := buildModel(job)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	kind, err := penalty.ParseKind(job.Config.Penalty)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	spec, err := penalty.ForDesign(m.NumParams(), kind, job.Config.Unpenalized, job.Config.Lambdas, job.Config.Thetas)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	engineCfg := opt.DefaultConfig()
	engineCfg.MaxIterations = job.Config.MaxIterations
	engineCfg.OnIteration = func(it opt.Iteration) error {
		return jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations++
			j.Point = it.Point
			j.Objective = it.Objective
		})
	}
	engine, err := opt.New(job.Config.Optimizer, engineCfg)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	err = jm.UpdateJob(jobID, func(j *Job) {
		j.Samples = m.NumObs()
		j.Params = m.NumParams()
	})
	if err != nil {
		return err
	}

	fitCfg := fit.DefaultConfig()
	fitCfg.HessianStep = job.Config.HessianStep

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	result, err := fit.Run(ctx, m, engine, nil, spec, fitCfg)
	close(progressDone)

	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			markJobCancelled(jm, jobID)
			return ctx.Err()
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	final := result.Final()
	summaries := result.Summaries()

	// Persist before the job reports completion so pollers find the record.
	if resultStore != nil {
		config := store.RunConfig{
			XPath:       job.Config.XPath,
			YPath:       job.Config.YPath,
			Engine:      job.Config.Optimizer,
			Penalty:     string(kind),
			Unpenalized: job.Config.Unpenalized,
			Lambdas:     spec.Lambdas,
			Thetas:      spec.Thetas,
			HessianStep: job.Config.HessianStep,
		}
		record := store.NewRecord(jobID, config, m.NumObs(), m.NumParams(), result.InitialLoss, summaries, result.Elapsed)
		if err := resultStore.SaveRecord(record); err != nil {
			// The fit itself succeeded; keep the job completed.
			slog.Error("Failed to save result", "job_id", jobID, "error", err)
		}
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.InitialLoss = result.InitialLoss
		j.Objective = final.Objective
		j.Point = final.Point
		j.Fits = summaries
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", result.Elapsed,
		"initial_loss", result.InitialLoss,
		"objective", final.Objective,
	)

	broadcastJob(jm, jobID)
	return nil
}

// monitorProgress periodically broadcasts progress events during a fit
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !broadcastJob(jm, jobID) {
				return
			}
		}
	}
}

// broadcastJob sends the current state of a job to its subscribers.
func broadcastJob(jm *JobManager, jobID string) bool {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return false
	}
	jm.broadcaster.Broadcast(progressEvent(job))
	return true
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastJob(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastJob(jm, jobID)
}
