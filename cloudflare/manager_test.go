package cloudflare

import (
	"context"
	"errors"
	"testing"

	"wakeproxy/types"
)

func TestNewManager(t *testing.T) {
	manager := NewManager(nil)
	if manager.IsEnabled() {
		t.Error("Manager should be disabled with nil client")
	}

	client, _ := NewClient(types.CloudflareConfig{Enabled: false, BaseDomain: "example.com"})
	manager = NewManager(client)
	if !manager.IsEnabled() {
		t.Error("Manager should be enabled with client")
	}
}

func TestRegisterRouteDomain_Disabled(t *testing.T) {
	manager := NewManager(nil)

	domain, err := manager.RegisterRouteDomain(context.Background(), "app")
	if err != nil {
		t.Fatalf("RegisterRouteDomain failed with disabled manager: %v", err)
	}
	if domain != nil {
		t.Error("Expected domain to be nil with disabled manager")
	}
}

func TestRegisterRouteDomain_Cached(t *testing.T) {
	api := &fakeDNS{}
	manager := NewManager(enabledClient(api, "203.0.113.10"))

	domain, err := manager.RegisterRouteDomain(context.Background(), "app")
	if err != nil {
		t.Fatalf("RegisterRouteDomain failed: %v", err)
	}

	domain2, err := manager.RegisterRouteDomain(context.Background(), "app")
	if err != nil {
		t.Fatalf("Second RegisterRouteDomain failed: %v", err)
	}
	if domain.Domain != domain2.Domain {
		t.Errorf("Expected same domain from both calls, got %q and %q", domain.Domain, domain2.Domain)
	}
	if len(api.created) != 1 {
		t.Errorf("Expected a single record creation, got %d", len(api.created))
	}
}

func TestSyncRoutes(t *testing.T) {
	client, _ := NewClient(types.CloudflareConfig{Enabled: false, BaseDomain: "example.com"})
	manager := NewManager(client)

	routes := []types.RouteConfig{{Route: "wiki"}, {Route: "app"}, {Route: "grafana"}}
	if failed := manager.SyncRoutes(context.Background(), routes); failed != 0 {
		t.Fatalf("Expected no failures, got %d", failed)
	}

	domains := manager.GetAllDomains()
	if len(domains) != len(routes) {
		t.Fatalf("Expected %d domains, got %d", len(routes), len(domains))
	}
	if domains[0].Route != "app" || domains[2].Route != "wiki" {
		t.Errorf("Expected domains ordered by route, got %v", domains)
	}
}

func TestSyncRoutes_FailuresAreNotFatal(t *testing.T) {
	manager := NewManager(enabledClient(&fakeDNS{createErr: errors.New("rate limited")}, "203.0.113.10"))

	failed := manager.SyncRoutes(context.Background(), []types.RouteConfig{{Route: "app"}, {Route: "wiki"}})
	if failed != 2 {
		t.Errorf("Expected 2 failures, got %d", failed)
	}
	if len(manager.GetAllDomains()) != 0 {
		t.Error("Failed routes must not be listed")
	}
}

func TestDeleteRouteDomain(t *testing.T) {
	client, _ := NewClient(types.CloudflareConfig{Enabled: false, BaseDomain: "example.com"})
	manager := NewManager(client)

	if _, err := manager.RegisterRouteDomain(context.Background(), "app"); err != nil {
		t.Fatalf("RegisterRouteDomain failed: %v", err)
	}
	if err := manager.DeleteRouteDomain(context.Background(), "app"); err != nil {
		t.Fatalf("DeleteRouteDomain failed: %v", err)
	}
	if _, exists := manager.GetRouteDomain("app"); exists {
		t.Error("Domain still exists after deletion")
	}
	if err := manager.DeleteRouteDomain(context.Background(), "app"); err != nil {
		t.Errorf("Deleting an unknown domain should be a no-op, got %v", err)
	}
}
