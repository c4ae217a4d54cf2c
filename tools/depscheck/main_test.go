package main

import "testing"

func TestLayeringRules(t *testing.T) {
	tests := []struct {
		pkg       string
		imp       string
		violation bool
	}{
		{pkg: "arena-rooms/server/internal/room", imp: "github.com/gorilla/websocket", violation: true},
		{pkg: "arena-rooms/server/internal/matchmaking", imp: "arena-rooms/server/internal/net/intake", violation: true},
		{pkg: "arena-rooms/server/internal/session", imp: "arena-rooms/server/internal/net/proto", violation: false},
		{pkg: "arena-rooms/server/internal/net/ws", imp: "github.com/gorilla/websocket", violation: false},
		{pkg: "arena-rooms/server/internal/roomsx", imp: "net/http", violation: false},
		{pkg: "arena-rooms/server/internal/player", imp: "net/http/httptest", violation: true},
	}
	for _, tt := range tests {
		got := isCore(tt.pkg) && isForbidden(tt.imp)
		if got != tt.violation {
			t.Fatalf("%s -> %s: violation=%v, want %v", tt.pkg, tt.imp, got, tt.violation)
		}
	}
}
