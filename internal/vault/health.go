package vault

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// checkHealth starts the full stack back up and probes it. Everything in
// here is best effort: failures are logged as warnings, never returned.
func (c *Client) checkHealth(ctx context.Context) {
	c.log.Info().Msg("checking deployment health")

	c.run.RunBestEffort(ctx, "docker", c.composeArgs("up", "-d")...)

	c.log.Info().Dur("delay", c.settleDelay).Msg("waiting for services to start")
	select {
	case <-ctx.Done():
		return
	case <-time.After(c.settleDelay):
	}

	for _, container := range healthContainers {
		status, err := c.docker.ContainerStatus(ctx, container)
		if err != nil || !strings.Contains(status, "Up") {
			c.log.Warn().Str("container", container).Str("status", status).
				Msg("container may not be running properly")
			continue
		}
		c.log.Info().Str("container", container).Str("status", status).Msg("container is running")
	}

	if c.pingAPI(ctx) {
		c.log.Info().Msg("API is responding")
	} else {
		c.log.Warn().Msg("API health check failed after all retries, check the server container logs")
	}
}

// pingAPI polls the server's ping endpoint, succeeding on the first HTTP 200.
func (c *Client) pingAPI(ctx context.Context) bool {
	for attempt := 1; attempt <= pingRetries; attempt++ {
		ok, status := c.pingOnce(ctx)
		if ok {
			return true
		}
		c.log.Warn().Int("attempt", attempt).Int("max", pingRetries).Str("status", status).
			Msg("API not responding yet")

		if attempt == pingRetries {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.pingInterval):
		}
	}
	return false
}

func (c *Client) pingOnce(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pingURL, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	// Drain so the keep-alive connection can be reused across retries.
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, resp.Status
}
