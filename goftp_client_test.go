package hdfsftpd

import (
	"bytes"
	"testing"

	goftp "github.com/secsy/goftp"
)

// TestGoftpClientRoundTrip drives the server with a real third-party FTP
// client instead of raw commands, grounded on the teacher's own test suite
// (driver_test.go/helpers_test.go), which exercises itself the same way.
func TestGoftpClientRoundTrip(t *testing.T) {
	srv, stop := newTestServer(t)
	defer stop()

	config := goftp.Config{
		User:     "alice",
		Password: "wonderland",
	}

	client, err := goftp.DialConfig(config, srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	payload := []byte("uploaded via a real FTP client\n")

	if err := client.Store("viaftp.txt", bytes.NewReader(payload)); err != nil {
		t.Fatalf("store: %v", err)
	}

	var buf bytes.Buffer
	if err := client.Retrieve("viaftp.txt", &buf); err != nil {
		t.Fatalf("retrieve: %v", err)
	}

	if buf.String() != string(payload) {
		t.Errorf("got %q, want %q", buf.String(), payload)
	}

	entries, err := client.ReadDir("/")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}

	found := false

	for _, e := range entries {
		if e.Name() == "viaftp.txt" {
			found = true
		}
	}

	if !found {
		t.Error("expected viaftp.txt to appear in the root listing")
	}
}
