package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vibewire/vibewire/wire"
	"github.com/vibewire/vibewire/workspace"
)

func testWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New()
	for _, frame := range []string{
		`{"type":"file_generated","file":{"filePath":"src/App.tsx","fileContents":"export default 1"}}`,
		`{"type":"file_generated","file":{"filePath":"index.html","fileContents":"<html></html>"}}`,
	} {
		msg, err := wire.Normalize([]byte(frame))
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		ws.Apply(msg)
	}
	return ws
}

func TestExport(t *testing.T) {
	var treeEntries []map[string]any
	var commitMessage string
	var refUpdated bool

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/r/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ref":    "refs/heads/main",
			"object": map[string]any{"sha": "base-sha", "type": "commit"},
		})
	})
	mux.HandleFunc("POST /repos/o/r/git/trees", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			BaseTree string           `json:"base_tree"`
			Tree     []map[string]any `json:"tree"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode tree request: %v", err)
		}
		if body.BaseTree != "base-sha" {
			t.Errorf("base_tree = %q", body.BaseTree)
		}
		treeEntries = body.Tree
		json.NewEncoder(w).Encode(map[string]any{"sha": "tree-sha"})
	})
	mux.HandleFunc("POST /repos/o/r/git/commits", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string   `json:"message"`
			Parents []string `json:"parents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode commit request: %v", err)
		}
		commitMessage = body.Message
		if len(body.Parents) != 1 || body.Parents[0] != "base-sha" {
			t.Errorf("parents = %v", body.Parents)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"sha":      "new-sha",
			"html_url": "https://github.com/o/r/commit/new-sha",
		})
	})
	mux.HandleFunc("PATCH /repos/o/r/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SHA string `json:"sha"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.SHA != "new-sha" {
			t.Errorf("updated ref sha = %q", body.SHA)
		}
		refUpdated = true
		json.NewEncoder(w).Encode(map[string]any{
			"ref":    "refs/heads/main",
			"object": map[string]any{"sha": "new-sha"},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	exp, err := New("tok", "o", "r", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}

	url, err := exp.Export(context.Background(), testWorkspace(t), "first export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if url != "https://github.com/o/r/commit/new-sha" {
		t.Fatalf("commit url = %q", url)
	}
	if commitMessage != "first export" {
		t.Fatalf("commit message = %q", commitMessage)
	}
	if !refUpdated {
		t.Fatal("ref never updated")
	}

	// Entries follow sorted path order.
	if len(treeEntries) != 2 {
		t.Fatalf("tree entries = %d", len(treeEntries))
	}
	if treeEntries[0]["path"] != "index.html" || treeEntries[1]["path"] != "src/App.tsx" {
		t.Fatalf("entry paths = %v, %v", treeEntries[0]["path"], treeEntries[1]["path"])
	}
	if treeEntries[0]["content"] != "<html></html>" {
		t.Fatalf("entry content = %v", treeEntries[0]["content"])
	}
}

func TestExportEmptyWorkspace(t *testing.T) {
	exp, err := New("tok", "o", "r")
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if _, err := exp.Export(context.Background(), workspace.New(), "msg"); err != ErrEmptyWorkspace {
		t.Fatalf("err = %v, want ErrEmptyWorkspace", err)
	}
}

func TestExportMissingBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/r/git/ref/heads/release", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"message": "Not Found"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	exp, err := New("tok", "o", "r", WithBranch("release"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if _, err := exp.Export(context.Background(), testWorkspace(t), ""); err == nil {
		t.Fatal("expected error for missing branch")
	}
}
