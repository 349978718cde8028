package service

import (
	"testing"

	"besiktning-sync-server/internal/domain"
)

func TestConflictResolverLastWriteWins(t *testing.T) {
	resolver := NewConflictResolver()

	tests := []struct {
		name       string
		serverTime any
		clientTime any
		wantWinner string
	}{
		{
			name:       "newer client wins",
			serverTime: "2026-08-20T10:00:00Z",
			clientTime: "2026-08-20T11:00:00Z",
			wantWinner: domain.WinnerClient,
		},
		{
			name:       "newer server wins",
			serverTime: "2026-08-20T11:00:00Z",
			clientTime: "2026-08-20T10:00:00Z",
			wantWinner: domain.WinnerServer,
		},
		{
			name:       "tie goes to server",
			serverTime: "2026-08-20T10:00:00Z",
			clientTime: "2026-08-20T10:00:00Z",
			wantWinner: domain.WinnerServer,
		},
		{
			name:       "missing client timestamp goes to server",
			serverTime: "2026-08-20T10:00:00Z",
			clientTime: nil,
			wantWinner: domain.WinnerServer,
		},
		{
			name:       "unparseable client timestamp goes to server",
			serverTime: "2026-08-20T10:00:00Z",
			clientTime: "last tuesday",
			wantWinner: domain.WinnerServer,
		},
		{
			name:       "missing server timestamp goes to server",
			serverTime: nil,
			clientTime: "2026-08-20T11:00:00Z",
			wantWinner: domain.WinnerServer,
		},
		{
			name:       "fractional seconds compare correctly",
			serverTime: "2026-08-20T10:00:00.100Z",
			clientTime: "2026-08-20T10:00:00.200Z",
			wantWinner: domain.WinnerClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serverState := map[string]any{"address": "server", "updated_at": tt.serverTime}
			clientChanges := map[string]any{"address": "client", "updated_at": tt.clientTime}

			res := resolver.Resolve(serverState, clientChanges, domain.StrategyLWW)

			if !res.Resolved {
				t.Fatal("Resolve() LWW did not resolve")
			}
			if res.Winner != tt.wantWinner {
				t.Errorf("winner = %q, want %q", res.Winner, tt.wantWinner)
			}
			want := "server"
			if tt.wantWinner == domain.WinnerClient {
				want = "client"
			}
			if res.State["address"] != want {
				t.Errorf("state address = %v, want %q", res.State["address"], want)
			}
		})
	}
}

func TestConflictResolverUnknownStrategyDefaultsToLWW(t *testing.T) {
	resolver := NewConflictResolver()

	res := resolver.Resolve(
		map[string]any{"updated_at": "2026-08-20T10:00:00Z"},
		map[string]any{"updated_at": "2026-08-20T11:00:00Z"},
		domain.ResolutionStrategy("three_way_merge"),
	)

	if !res.Resolved || res.Winner != domain.WinnerClient {
		t.Errorf("Resolve() unknown strategy = %+v, want LWW behavior", res)
	}
}

func TestConflictResolverManual(t *testing.T) {
	resolver := NewConflictResolver()

	serverState := map[string]any{"address": "server"}
	clientChanges := map[string]any{"address": "client"}

	res := resolver.Resolve(serverState, clientChanges, domain.StrategyManual)

	if res.Resolved {
		t.Fatal("Resolve() manual reported resolved")
	}
	if res.Conflict == nil || !res.Conflict.RequiresManual {
		t.Fatalf("Resolve() manual conflict = %+v", res.Conflict)
	}
	if res.Conflict.ServerState["address"] != "server" {
		t.Errorf("server state = %v", res.Conflict.ServerState)
	}
	if res.Conflict.ClientChanges["address"] != "client" {
		t.Errorf("client changes = %v", res.Conflict.ClientChanges)
	}
}

func TestConflictResolverMergeFields(t *testing.T) {
	resolver := NewConflictResolver()

	serverState := map[string]any{
		"address": "Storgatan 1",
		"city":    "Göteborg",
		"notes":   "server notes",
	}
	clientChanges := map[string]any{
		"address": "Nygatan 2",
		"notes":   "client notes",
		"owner":   "Brf Eken",
	}

	merged := resolver.MergeFields(serverState, clientChanges, map[string]domain.FieldStrategy{
		"notes": domain.FieldServerWins,
	})

	if merged["address"] != "Nygatan 2" {
		t.Errorf("address = %v, want the client value", merged["address"])
	}
	if merged["notes"] != "server notes" {
		t.Errorf("notes = %v, want the server value", merged["notes"])
	}
	if merged["owner"] != "Brf Eken" {
		t.Errorf("owner = %v, want the client-only field", merged["owner"])
	}
	if merged["city"] != "Göteborg" {
		t.Errorf("city = %v, want the untouched server field", merged["city"])
	}
	if serverState["address"] != "Storgatan 1" {
		t.Error("MergeFields() mutated its input")
	}
}
