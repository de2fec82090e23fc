package config

import (
	"fmt"
	"os"
)

const exampleConfig = `# uxpipe configuration
base_url: "https://app.example.com"
queue_dir: "shared/queue"

pages:
  inventory: "pages.csv"
  probe: true
  probe_timeout: "10s"

record:
  command: "uxpipe-recorder"
  video_dir: "shared/videos"
  viewport_width: 1280
  viewport_height: 720

analyze:
  endpoint: "https://api.openai.com/v1/chat/completions"
  api_key_env: "OPENAI_API_KEY"
  model: "gpt-4o"
  reports_dir: "shared/reports"
  frames_per_video: 5

codegen:
  endpoint: "https://api.anthropic.com/v1/messages"
  api_key_env: "ANTHROPIC_API_KEY"
  output_dir: "shared/generated"
  design_system:
    colors: ["#1a1a2e", "#e94560"]
    font: "Inter"
    style: "minimal"
    industry: "saas"

publish:
  repo_path: "."
  branch_prefix: "uxpipe"
  author_name: "uxpipe"
  author_email: "uxpipe@example.com"

notify:
  webhook_url: "${UXPIPE_WEBHOOK_URL}"

stages:
  record_sessions:
    concurrency: 2
    item_timeout: "5m"
  analyze_ux:
    max_failure_ratio: 0.5

retry:
  mode: "linear"
  initial: "1s"
  max: "30s"
  max_retries: 2

metrics:
  enabled: false

watch:
  interval: "30m"
  debounce: "2s"
`

// Init writes an annotated example configuration to path. It refuses to
// overwrite an existing file unless force is set.
func Init(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
