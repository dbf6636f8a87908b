package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/illenko/usagewatch/internal/scheduler"
	"github.com/illenko/usagewatch/internal/storage"
	"github.com/illenko/usagewatch/pkg/models"
)

var statusServer string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current usage snapshot and database statistics",
	Long: `Prints the usage snapshot computed from the local database. With --server the
task status of a running "usagewatch serve" instance is included.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "", "base URL of a running server, e.g. http://localhost:8080")
}

type statusOutput struct {
	Usage    models.HealthSnapshot  `json:"usage"`
	Database *storage.DBStats       `json:"database"`
	Tasks    []scheduler.TaskStatus `json:"tasks,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	stats, err := a.db.Stats(ctx)
	if err != nil {
		return err
	}

	out := statusOutput{Usage: a.monitor.Health(ctx), Database: stats}
	if statusServer != "" {
		out.Tasks, err = fetchTasks(ctx, statusServer)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func fetchTasks(ctx context.Context, baseURL string) ([]scheduler.TaskStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tasks", nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}

	var tasks []scheduler.TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return nil, fmt.Errorf("failed to decode task status: %w", err)
	}
	return tasks, nil
}
