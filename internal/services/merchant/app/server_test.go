package server

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/agentpay/internal/a2a"
	"github.com/louisbranch/agentpay/internal/mandate"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("AGENTPAY_MERCHANT_DB_PATH", t.TempDir()+"/merchant.db")

	srv, err := NewWithAddr("127.0.0.1:0")
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	t.Cleanup(func() {
		runCancel()
		select {
		case serveErr := <-serveDone:
			if serveErr != nil {
				t.Fatalf("serve: %v", serveErr)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for server shutdown")
		}
	})
	return srv
}

func TestServer_FindProductsRoundTrip(t *testing.T) {
	srv := startServer(t)

	client := a2a.NewClient(a2a.ClientConfig{
		Name:               "merchant",
		BaseURL:            "http://" + srv.Addr(),
		RequiredExtensions: []string{mandate.ExtensionURI},
	})

	intent, err := mandate.NewIntentMandate("おむつを買ってください。", true, nil, nil, false, time.Now())
	if err != nil {
		t.Fatalf("new intent: %v", err)
	}
	msg, err := a2a.NewMessageBuilder().
		AddText("find_products").
		AddData(mandate.IntentMandateKey, intent).
		AddData(mandate.ShoppingAgentIDKey, "trusted_shopping_agent").
		Build()
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	task, err := client.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}

	carts, err := a2a.FindCanonicalObjects[mandate.CartMandate](task.Artifacts, mandate.CartMandateKey)
	if err != nil {
		t.Fatalf("find carts: %v", err)
	}
	if len(carts) != 3 {
		t.Fatalf("carts len = %d, want 3", len(carts))
	}
}
