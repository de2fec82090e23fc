package config

import (
	"path/filepath"
	"time"
)

const (
	defaultQueueDir    = "shared/queue"
	defaultStateName   = "workflow_state.json"
	defaultJournalName = "events.db"

	defaultConcurrency     = 3
	defaultItemTimeout     = 2 * time.Minute
	defaultMaxFailureRatio = 1.0

	defaultProbeTimeout   = 10 * time.Second
	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
	defaultFramesPerVideo = 5

	defaultRetryMode    = "linear"
	defaultRetryInitial = time.Second
	defaultRetryMax     = 30 * time.Second

	defaultWatchInterval = 30 * time.Minute
	defaultWatchDebounce = 2 * time.Second

	defaultMetricsListen = "127.0.0.1:9823"
)

func (c *Config) applyDefaults() {
	if c.QueueDir == "" {
		c.QueueDir = defaultQueueDir
	}
	if c.StateFile == "" {
		c.StateFile = filepath.Join(c.QueueDir, defaultStateName)
	}
	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(c.QueueDir, defaultJournalName)
	}

	if c.Pages.ProbeTimeout == 0 {
		c.Pages.ProbeTimeout = Duration(defaultProbeTimeout)
	}
	if c.Record.ViewportWidth == 0 {
		c.Record.ViewportWidth = defaultViewportWidth
	}
	if c.Record.ViewportHeight == 0 {
		c.Record.ViewportHeight = defaultViewportHeight
	}
	if c.Analyze.FramesPerVideo == 0 {
		c.Analyze.FramesPerVideo = defaultFramesPerVideo
	}
	if c.Publish.BranchPrefix == "" {
		c.Publish.BranchPrefix = "uxpipe"
	}

	if c.Retry.Mode == "" {
		c.Retry.Mode = defaultRetryMode
	}
	if c.Retry.Initial == 0 {
		c.Retry.Initial = Duration(defaultRetryInitial)
	}
	if c.Retry.Max == 0 {
		c.Retry.Max = Duration(defaultRetryMax)
	}

	if c.Watch.Interval == 0 {
		c.Watch.Interval = Duration(defaultWatchInterval)
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = Duration(defaultWatchDebounce)
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = defaultMetricsListen
	}
}
