// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"emgrep/internal/history"
	"emgrep/internal/transport"
	"fmt"

	"github.com/google/uuid"
)

// StartSet begins recording a set. It requires a connected source and no set
// in progress. Reps and TUT restart from zero.
func (e *Engine) StartSet(ctx context.Context) (string, error) {
	var (
		id  string
		err error
	)
	doErr := e.do(ctx, func() {
		if !e.connected.Load() {
			err = ErrNotConnected
			return
		}
		if e.recorder.Recording() {
			err = ErrAlreadyRecording
			return
		}
		id = uuid.NewString()
		e.recorder.Start(id, e.pipeline.Now())
		e.openRaw(id)
		e.publishStatus()
	})
	if doErr != nil {
		return "", doErr
	}
	if err != nil {
		return "", err
	}
	e.logger.Info("set started", "set", id, "preset", e.Status().PresetID)
	return id, nil
}

// StopSet finishes the current set, publishes its summary and prepends it to
// history. A persistence failure is returned together with the summary; the
// in-memory history keeps the set either way.
func (e *Engine) StopSet(ctx context.Context) (history.SetSummary, error) {
	var (
		summary history.SetSummary
		err     error
	)
	doErr := e.do(ctx, func() {
		env := e.pipeline.Envelope()
		summary, err = e.recorder.Stop(e.pipeline.Now(), SetStats{
			AvgV:     env.Average(),
			PeakV:    env.Peak(),
			MVCV:     e.settings.MVC,
			PresetID: e.settings.PresetID,
		})
		if err != nil {
			return
		}
		e.closeRaw()
		e.publishStatus()
	})
	if doErr != nil {
		return history.SetSummary{}, doErr
	}
	if err != nil {
		return history.SetSummary{}, err
	}

	e.send(transport.SetMessage{Type: transport.TypeSet, Summary: summary})
	e.logger.Info("set finished", "set", summary.ID, "reps", summary.Reps,
		"tut", fmt.Sprintf("%.2fs", summary.TUTSeconds), "duration", fmt.Sprintf("%.2fs", summary.DurationSeconds))

	if err := e.history.Add(ctx, summary); err != nil {
		e.logger.Error("set not persisted", "set", summary.ID, "err", err)
		return summary, err
	}
	return summary, nil
}
