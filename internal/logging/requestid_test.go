package logging

import (
	"context"
	"testing"
)

func TestEnsureRequestIDKeepsExisting(t *testing.T) {
	t.Parallel()

	ctx := WithRequestID(context.Background(), "deadbeef")
	got, id := EnsureRequestID(ctx)
	if id != "deadbeef" {
		t.Fatalf("id = %q, want deadbeef", id)
	}
	if got != ctx {
		t.Fatal("expected the same context back")
	}
}

func TestEnsureRequestIDGeneratesOne(t *testing.T) {
	t.Parallel()

	ctx, id := EnsureRequestID(context.Background())
	if len(id) != 8 {
		t.Fatalf("expected 8 character id, got %q", id)
	}
	if GetRequestID(ctx) != id {
		t.Fatalf("context carries %q, want %q", GetRequestID(ctx), id)
	}
	if entry := FromContext(ctx); entry.Data["request_id"] != id {
		t.Fatalf("entry request_id = %v, want %s", entry.Data["request_id"], id)
	}
}
