package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"uxpipe/internal/config"
	"uxpipe/internal/eventstore"
	"uxpipe/internal/state"
)

func cmdStatus() int {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("configuration error", "error", err)
		return exitInput
	}

	ws, err := state.Load(cfg.StateFile)
	if err != nil {
		if errors.Is(err, state.ErrNoState) {
			fmt.Println("no runs recorded")
			return exitOK
		}
		slog.Error("read workflow state", "error", err)
		return exitRun
	}

	fmt.Printf("run %s: %s\n", ws.RunID, ws.Status)
	fmt.Printf("started %s, updated %s\n", ws.StartedAt.Format(time.RFC3339), ws.UpdatedAt.Format(time.RFC3339))
	if ws.SampleSize > 0 {
		fmt.Printf("sample size: %d\n", ws.SampleSize)
	}
	if ws.Error != "" {
		fmt.Printf("error: %s\n", ws.Error)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Stage", "Status", "Items", "OK", "Failed", "Finished"})
	for _, s := range ws.Stages {
		finished := ""
		if !s.FinishedAt.IsZero() {
			finished = s.FinishedAt.Format(time.RFC3339)
		}
		t.AppendRow(table.Row{s.Index, s.Name, s.Status, s.TotalItems, s.SuccessfulItems, s.FailedItems, finished})
	}
	t.Render()

	if CLI.Status.Events {
		if err := printEvents(cfg.JournalPath, ws.RunID); err != nil {
			slog.Warn("read run journal", "error", err)
		}
	}
	return exitOK
}

func printEvents(journalPath, runID string) error {
	j, err := eventstore.Open(journalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	events, err := j.ByRun(context.Background(), runID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("no journal entries for this run")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Time", "Stage", "Event", "Payload"})
	for _, e := range events {
		t.AppendRow(table.Row{e.Timestamp.Format(time.RFC3339), e.Stage, e.Type, string(e.Payload)})
	}
	t.Render()
	return nil
}
