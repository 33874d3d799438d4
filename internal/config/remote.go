package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxRemoteConfig = 1 << 20

var remoteClient = &http.Client{Timeout: 15 * time.Second}

// IsRemote reports whether location is a URL rather than a file path.
func IsRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "https://") || strings.HasPrefix(l, "http://")
}

func fetch(ctx context.Context, location, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("config request: %w", err)
	}
	req.Header.Set("Accept", "application/yaml, text/yaml;q=0.9, */*;q=0.1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := remoteClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch config: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfig+1))
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	if len(data) > maxRemoteConfig {
		return nil, fmt.Errorf("fetch config: document exceeds %d bytes", maxRemoteConfig)
	}
	return data, nil
}
