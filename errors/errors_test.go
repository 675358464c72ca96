package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Message(t *testing.T) {
	err := New(KindExecution, "something broke")
	if !strings.Contains(err.Error(), "EXECUTION") {
		t.Fatalf("expected kind in message, got %q", err.Error())
	}

	err = err.WithCause(fmt.Errorf("root cause"))
	if !strings.Contains(err.Error(), "root cause") {
		t.Fatalf("expected cause in message, got %q", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NodeFailed("load_data", nil, cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
}

func TestGetKind(t *testing.T) {
	err := ModuleNotFound("data-prep", []string{"data-prep", "data_prep", "pipelines.data_prep"})
	if GetKind(err) != KindResolution {
		t.Fatalf("expected RESOLUTION, got %s", GetKind(err))
	}

	wrapped := fmt.Errorf("running pipeline: %w", err)
	if GetKind(wrapped) != KindResolution {
		t.Fatal("expected kind extraction through wrapping")
	}

	if GetKind(fmt.Errorf("plain")) != "" {
		t.Fatal("expected empty kind for plain errors")
	}
}

func TestIsKind(t *testing.T) {
	err := Unsupported("suspendable execution", "redis queue backend")
	if !IsKind(err, KindCapability) {
		t.Fatal("expected capability kind")
	}
	if IsKind(err, KindBackend) {
		t.Fatal("did not expect backend kind")
	}
}

func TestRetryableDefaults(t *testing.T) {
	if !BackendUnavailable("redis", nil).Retryable {
		t.Fatal("expected backend unavailability to be retryable")
	}
	if Configuration("executor.type", "project document", "unknown executor").Retryable {
		t.Fatal("configuration errors are never retryable")
	}
}

func TestModuleNotFound_ListsAttempts(t *testing.T) {
	attempted := []string{"data-prep", "data_prep", "pipelines.data_prep"}
	err := ModuleNotFound("data-prep", attempted)
	for _, v := range attempted {
		if !strings.Contains(err.Error(), v) {
			t.Fatalf("expected attempt %q in message %q", v, err.Error())
		}
	}
}

func TestNodeFailed_PartialResults(t *testing.T) {
	partial := map[string]any{"conn": "ok"}
	err := NodeFailed("transform", partial, fmt.Errorf("bad input"))
	got, ok := err.Details["partial_results"].(map[string]any)
	if !ok {
		t.Fatal("expected partial results in details")
	}
	if got["conn"] != "ok" {
		t.Fatal("expected completed node output preserved")
	}
}
