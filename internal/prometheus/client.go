package prometheus

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

type Client struct {
	api     v1.API
	timeout time.Duration
}

type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	apiCfg := api.Config{
		Address: cfg.URL,
	}

	if cfg.Username != "" && cfg.Password != "" {
		apiCfg.RoundTripper = &basicAuthTransport{
			username: cfg.Username,
			password: cfg.Password,
		}
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}

	return &Client{
		api:     v1.NewAPI(client),
		timeout: cfg.Timeout,
	}, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.api.Runtimeinfo(ctx)
	if err != nil {
		return fmt.Errorf("prometheus health check failed: %w", err)
	}
	return nil
}

// QueryValue evaluates an instant query that must produce a single number.
// Vectors with several series are summed.
func (c *Client) QueryValue(ctx context.Context, query string, at time.Time) (float64, error) {
	var opts []v1.Option
	if c.timeout > 0 {
		opts = append(opts, v1.WithTimeout(c.timeout))
	}

	result, warnings, err := c.api.Query(ctx, query, at, opts...)
	if err != nil {
		return 0, fmt.Errorf("query %q failed: %w", query, err)
	}
	for _, w := range warnings {
		slog.Warn("prometheus query warning", "query", query, "warning", w)
	}

	switch v := result.(type) {
	case *model.Scalar:
		return float64(v.Value), nil
	case model.Vector:
		if len(v) == 0 {
			return 0, fmt.Errorf("query %q returned no series", query)
		}
		var sum float64
		for _, s := range v {
			sum += float64(s.Value)
		}
		return sum, nil
	default:
		return 0, fmt.Errorf("query %q returned unsupported type %s", query, result.Type())
	}
}

type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}
