package redisclient

import (
	"context"
	"testing"
)

func TestNew_EmptyURLDisablesRedis(t *testing.T) {
	c, err := New(context.Background(), "")
	if err != nil || c != nil {
		t.Fatalf("expected nil client and no error, got %v, %v", c, err)
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := New(context.Background(), "not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNew_UnreachableServer(t *testing.T) {
	if _, err := New(context.Background(), "redis://127.0.0.1:1/0"); err == nil {
		t.Fatal("expected ping error for an unreachable server")
	}
}
