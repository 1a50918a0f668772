package ci_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestGoTestsWorkflow(t *testing.T) {
	projectRoot := filepath.Clean(filepath.Join("..", ".."))
	data, err := os.ReadFile(filepath.Join(projectRoot, ".github", "workflows", "go-tests.yml"))
	if err != nil {
		t.Fatalf("read workflow: %v", err)
	}

	for _, snippet := range []string{
		"go-version-file: go.mod",
		"go vet ./...",
		"go test ./...",
		"APP_TEST_POSTGRES_URL",
		"APP_TEST_REDIS_URL",
	} {
		if !bytes.Contains(data, []byte(snippet)) {
			t.Fatalf("go-tests workflow missing %q", snippet)
		}
	}
}
