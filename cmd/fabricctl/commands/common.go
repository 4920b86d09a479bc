package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// httpClient is shared by every subcommand that talks to a running daemon's
// HTTP control surface.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// expandHome expands a leading "~" into the user's home directory.
func expandHome(path string) string {
	if path == "" {
		return ""
	}

	expanded := os.ExpandEnv(path)
	if expanded == path && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		expanded = home + path[1:]
	}
	return expanded
}

// getJSON issues a GET against the daemon's control surface and decodes the
// JSON response into out.
func getJSON(path string, out any) error {
	resp, err := httpClient.Get(daemonAddr + path)
	if err != nil {
		return fmt.Errorf("contacting daemon at %s: %w", daemonAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %s: %s", resp.Status, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// postJSON issues a POST with body marshaled as JSON against the daemon's
// control surface and decodes the JSON response into out (if non-nil).
func postJSON(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := httpClient.Post(
		daemonAddr+path, "application/json", bytes.NewReader(data),
	)
	if err != nil {
		return fmt.Errorf("contacting daemon at %s: %w", daemonAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %s: %s", resp.Status, respBody)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
