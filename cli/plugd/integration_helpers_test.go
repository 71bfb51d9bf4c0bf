//go:build integration

package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testArtifact is one published version served by startRepoServer.
type testArtifact struct {
	Name     string
	GUID     string
	Version  string
	Payload  []byte
	Checksum string // defaults to the sha256 of Payload
}

// startRepoServer serves one manifest per repository name at /<repo>/manifest.json
// and the artifact payloads under /files/.
func startRepoServer(t *testing.T, repos map[string][]testArtifact) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	for repoName, artifacts := range repos {
		var manifest []map[string]any
		byName := map[string]int{}
		for _, a := range artifacts {
			fileName := a.Name + "-" + a.Version + ".dll"
			payload := a.Payload
			mux.HandleFunc("GET /files/"+repoName+"/"+fileName, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(payload)
			})

			checksum := a.Checksum
			if checksum == "" {
				sum := sha256.Sum256(a.Payload)
				checksum = hex.EncodeToString(sum[:])
			}
			version := map[string]any{
				"version":   a.Version,
				"sourceUrl": srv.URL + "/files/" + repoName + "/" + fileName,
				"checksum":  checksum,
			}

			idx, ok := byName[a.Name]
			if !ok {
				idx = len(manifest)
				byName[a.Name] = idx
				manifest = append(manifest, map[string]any{
					"name":        a.Name,
					"guid":        a.GUID,
					"description": "Test package " + a.Name,
					"versions":    []map[string]any{},
				})
			}
			manifest[idx]["versions"] = append(manifest[idx]["versions"].([]map[string]any), version)
		}

		data, err := json.Marshal(manifest)
		require.NoError(t, err)
		mux.HandleFunc("GET /"+repoName+"/manifest.json", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(data)
		})
	}
	return srv
}

// writeConfig writes a config file pointing every directory into root.
func writeConfig(t *testing.T, root string, repos ...[2]string) string {
	t.Helper()
	cfgPath := filepath.Join(root, "config.yaml")

	yamlContent := `settings:
  install_dir: ` + filepath.Join(root, "plugins") + `
  temp_dir: ` + filepath.Join(root, "tmp") + `
  state_dir: ` + filepath.Join(root, "state") + `
  http_timeout: 5s
  fetch_timeout: 5s
  stall_timeout: 5s
  max_attempts: 2
  retry_backoff_ms: [1]
  log_level: error
repositories:
`
	for _, repo := range repos {
		yamlContent += "  - name: " + repo[0] + "\n    url: " + repo[1] + "\n"
	}
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0o600))
	return cfgPath
}

// runCLI executes the root command and returns what it printed to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}
