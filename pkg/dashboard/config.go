// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dashboard

import (
	"fmt"
	"time"

	"github.com/maflow/orchestrator/pkg/httpclient"
)

// Config configures the HTTP dashboard client: the base URL, the
// underlying httpclient.Config it builds its transport from, and the
// circuit breaker's trip/reset behavior.
type Config struct {
	// BaseURL is the dashboard API root, e.g. "https://dashboard.internal/api".
	BaseURL string

	// APIKey is sent as a Bearer token on every request, if non-empty.
	APIKey string

	// HTTPClient configures timeouts and retries for the underlying
	// transport (see pkg/httpclient.Config).
	HTTPClient httpclient.Config

	// BreakerName identifies this breaker instance in state-change logs.
	BreakerName string

	// BreakerMaxRequests is how many requests are allowed through while
	// the breaker is half-open.
	BreakerMaxRequests uint32

	// BreakerInterval is the closed-state window over which failure
	// counts are reset. Zero means never reset while closed.
	BreakerInterval time.Duration

	// BreakerTimeout is how long the breaker stays open before moving to
	// half-open.
	BreakerTimeout time.Duration

	// BreakerFailureThreshold is the number of consecutive failures that
	// trips the breaker open.
	BreakerFailureThreshold uint32
}

// DefaultConfig returns dashboard client defaults: a 10s HTTP timeout
// with the ambient retry policy, and a breaker that opens after 5
// consecutive failures and waits 30s before probing again.
func DefaultConfig(baseURL string) Config {
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = 10 * time.Second
	httpCfg.UserAgent = "orchestrator-dashboard-client/1.0"

	return Config{
		BaseURL:                 baseURL,
		HTTPClient:              httpCfg,
		BreakerName:             "dashboard",
		BreakerMaxRequests:      1,
		BreakerInterval:         0,
		BreakerTimeout:          30 * time.Second,
		BreakerFailureThreshold: 5,
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if err := c.HTTPClient.Validate(); err != nil {
		return fmt.Errorf("http_client: %w", err)
	}
	if c.BreakerFailureThreshold == 0 {
		return fmt.Errorf("breaker_failure_threshold must be > 0")
	}
	return nil
}
