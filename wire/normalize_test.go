package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNormalizeTyped(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, m *Message)
	}{
		{
			name:  "generation started",
			frame: `{"type":"generation_started","totalFiles":12}`,
			check: func(t *testing.T, m *Message) {
				if m.Type != TypeGenerationStarted || m.TotalFiles != 12 {
					t.Fatalf("got %+v", m)
				}
			},
		},
		{
			name:  "file generated",
			frame: `{"type":"file_generated","file":{"filePath":"src/app.tsx","fileContents":"export {}"}}`,
			check: func(t *testing.T, m *Message) {
				if m.File == nil || m.File.FilePath != "src/app.tsx" {
					t.Fatalf("got %+v", m)
				}
			},
		},
		{
			name:  "phase with nested payload",
			frame: `{"type":"phase_validated","phase":{"name":"auth","description":"login flow"}}`,
			check: func(t *testing.T, m *Message) {
				if m.Phase == nil || m.Phase.Name != "auth" || m.Phase.Description != "login flow" {
					t.Fatalf("got %+v", m)
				}
			},
		},
		{
			name:  "deployment completed",
			frame: `{"type":"deployment_completed","previewURL":"https://p.example","tunnelURL":"https://t.example","instanceId":"i-1"}`,
			check: func(t *testing.T, m *Message) {
				if m.PreviewURL != "https://p.example" || m.TunnelURL != "https://t.example" || m.InstanceID != "i-1" {
					t.Fatalf("got %+v", m)
				}
			},
		},
		{
			name:  "unknown type passes through",
			frame: `{"type":"future_feature","anything":true}`,
			check: func(t *testing.T, m *Message) {
				if m.Type != "future_feature" {
					t.Fatalf("got %+v", m)
				}
			},
		},
		{
			name:  "server error",
			frame: `{"type":"error","error":"agent crashed"}`,
			check: func(t *testing.T, m *Message) {
				if m.Error != "agent crashed" {
					t.Fatalf("got %+v", m)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Normalize([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			tt.check(t, m)
		})
	}
}

func TestNormalizeDoubleEncodedType(t *testing.T) {
	inner := `{"type":"generation_complete","instanceId":"i-9","previewURL":"https://x"}`
	outer, _ := json.Marshal(map[string]string{"type": inner})

	m, err := Normalize(outer)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if m.Type != TypeGenerationComplete || m.InstanceID != "i-9" || m.PreviewURL != "https://x" {
		t.Fatalf("got %+v", m)
	}
}

func TestNormalizeDoubleEncodedTypeOnlyOnce(t *testing.T) {
	// Two levels of double-encoding: the inner unwrap sees a type field
	// that still looks like an object, but recursion is capped at one, so
	// the inner-inner string stays as the literal type. That type string
	// is not further unwrapped.
	innermost := `{"type":"connected"}`
	inner, _ := json.Marshal(map[string]string{"type": innermost})
	outer, _ := json.Marshal(map[string]string{"type": string(inner)})

	m, err := Normalize(outer)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if m.Type != innermost {
		t.Fatalf("type = %q, want the literal inner string", m.Type)
	}
}

func TestNormalizeDoubleEncodedGarbage(t *testing.T) {
	outer, _ := json.Marshal(map[string]string{"type": `{not json}`})
	_, err := Normalize(outer)
	if !errors.Is(err, ErrUnclassified) {
		t.Fatalf("err = %v, want ErrUnclassified", err)
	}
}

func TestNormalizeSynthesizedSnapshot(t *testing.T) {
	t.Run("top level", func(t *testing.T) {
		frame := `{"behaviorType":"phased","projectType":"webapp","generatedFilesMap":{"a.txt":{"filePath":"a.txt","fileContents":"1"}}}`
		m, err := Normalize([]byte(frame))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if m.Type != TypeStateSnapshot {
			t.Fatalf("type = %q", m.Type)
		}
		if m.State == nil || m.State.BehaviorType != BehaviorPhased {
			t.Fatalf("state = %+v", m.State)
		}
		if len(m.State.GeneratedFilesMap) != 1 {
			t.Fatalf("files = %+v", m.State.GeneratedFilesMap)
		}
	})

	t.Run("under state key", func(t *testing.T) {
		frame := `{"state":{"behaviorType":"freeform","projectType":"api"}}`
		m, err := Normalize([]byte(frame))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if m.Type != TypeStateSnapshot || m.State.ProjectType != "api" {
			t.Fatalf("got %+v state %+v", m, m.State)
		}
	})
}

func TestNormalizeUnclassified(t *testing.T) {
	for _, frame := range []string{
		`{"behaviorType":"phased"}`,
		`{"foo":"bar"}`,
		`{"type":42}`,
		`{}`,
	} {
		_, err := Normalize([]byte(frame))
		if !errors.Is(err, ErrUnclassified) {
			t.Fatalf("frame %s: err = %v, want ErrUnclassified", frame, err)
		}
	}
}

func TestNormalizeParseError(t *testing.T) {
	_, err := Normalize([]byte("not json at all"))
	if err == nil || errors.Is(err, ErrUnclassified) {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		msgType string
		want    Category
		ok      bool
	}{
		{TypeConnected, CategoryConnected, true},
		{TypeConversationState, CategoryConversation, true},
		{TypePhaseImplementing, CategoryPhase, true},
		{TypeFileChunkGenerated, CategoryFile, true},
		{TypeGenerationStopped, CategoryGeneration, true},
		{TypeDeploymentFailed, CategoryPreview, true},
		{TypeCloudflareDeploymentCompleted, CategoryCloudflare, true},
		{TypeError, CategoryError, true},
		{TypeStateSnapshot, "", false},
		{"future_feature", "", false},
	}
	for _, tt := range tests {
		got, ok := CategoryOf(tt.msgType)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CategoryOf(%q) = %q, %v; want %q, %v", tt.msgType, got, ok, tt.want, tt.ok)
		}
	}
}

func TestClientMessageSerialization(t *testing.T) {
	data, err := json.Marshal(SessionInit("tok-123"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"session_init","sessionToken":"tok-123"}`
	if string(data) != want {
		t.Fatalf("got %s, want %s", data, want)
	}

	data, _ = json.Marshal(Command(CmdGenerateAll))
	if string(data) != `{"type":"generate_all"}` {
		t.Fatalf("got %s", data)
	}
}
