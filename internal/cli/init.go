package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new config file",
	Long:  `Creates a new config.yaml file with default settings in the current directory.`,
	RunE:  runInit,
}

const defaultConfigYAML = `# usagewatch configuration
# Every key can be overridden with USAGEWATCH_<SECTION>_<KEY>, e.g. USAGEWATCH_SMTP_PASSWORD.
# Variables from a .env file in the working directory are loaded first.

storage:
  path: ./data/usagewatch.db
  retention: 180d   # How long to keep samples in SQLite

thresholds:
  # A metric without a capacity is disabled. Values saved through the API
  # take precedence over these defaults.
  disk:
    capacity: 0          # bytes, e.g. 536870912000 for 500 GiB
    warning_level: 80    # percent of capacity
  users:
    capacity: 0          # active users in the last day
    warning_level: 80
  users_90d:
    capacity: 0          # active users in the last 90 days
    warning_level: 80

notifications:
  recipients: []
  #   - admin@example.com
  timezone: Local          # host zone; user count alerts are only sent between 08:00 and 09:00 here
  subject_prefix: "[usagewatch]"
  site_name: LMS

smtp:
  host: ""                 # empty logs messages instead of sending them
  port: 587
  # username: ""
  # password: ""
  from: usagewatch@localhost

collection:
  disk_path: /
  disk_interval: 1h
  users_interval: 1h
  prometheus:
    url: http://localhost:9090   # empty disables user collection
    # Optional basic auth
    # username: ""
    # password: ""
    timeout: 30s
    users_query: max(lms_active_users_1d)
    users_90d_query: max(lms_active_users_90d)

scheduler:
  check_interval: 15m
  cleanup_interval: 24h
  task_timeout: 5m

server:
  port: 8080
  host: 0.0.0.0
  request_timeout: 30s
  rate_limit: 5     # requests per second per client, 0 disables
  rate_burst: 10

log:
  level: info       # debug, info, warn, error
  format: text      # text or json
`

func runInit(cmd *cobra.Command, args []string) error {
	configPath := "config.yaml"
	if cfgFile != "" {
		configPath = cfgFile
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists, remove it first or use a different directory", configPath)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Created", configPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set the capacities and notification recipients")
	fmt.Fprintln(out, "  2. Run: usagewatch collect")
	fmt.Fprintln(out, "  3. Run: usagewatch serve")

	return nil
}
