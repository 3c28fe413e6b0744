package tftp

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestResolveDefaultPort(t *testing.T) {
	addr, err := resolve(context.Background(), nil, "127.0.0.1", DefaultPort)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr.Port != DefaultPort {
		t.Fatalf("port = %d, want %d", addr.Port, DefaultPort)
	}
	if !addr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("ip = %v, want 127.0.0.1", addr.IP)
	}
}

func TestResolveExplicitPort(t *testing.T) {
	addr, err := resolve(context.Background(), nil, "127.0.0.1:9999", DefaultPort)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr.Port != 9999 {
		t.Fatalf("port = %d, want 9999", addr.Port)
	}
}

func TestResolveInvalidPort(t *testing.T) {
	_, err := resolve(context.Background(), nil, "127.0.0.1:not-a-port", DefaultPort)
	if err == nil {
		t.Fatal("expected an error for a non-numeric port")
	}
	var re *ResolveError
	if !errors.As(err, &re) {
		t.Fatalf("error type = %T, want *ResolveError", err)
	}
	if re.Kind != ResolveServiceNotFound {
		t.Fatalf("kind = %v, want ResolveServiceNotFound", re.Kind)
	}
}
