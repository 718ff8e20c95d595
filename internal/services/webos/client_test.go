package webos_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"tvship/internal/services"
	"tvship/internal/services/webos"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...webos.Option) *webos.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, err := strconv.Atoi(parsed.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}
	client, err := webos.New(parsed.Hostname(), port, opts...)
	if err != nil {
		t.Fatalf("webos.New: %v", err)
	}
	return client
}

func TestProbeSucceeds(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pair/probe" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	if err := client.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
}

func TestProbeConnectionRefusedIsTransient(t *testing.T) {
	// Port from a closed listener: connection refused.
	server := httptest.NewServer(http.NotFoundHandler())
	parsed, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(parsed.Port())
	server.Close()

	client, err := webos.New(parsed.Hostname(), port)
	if err != nil {
		t.Fatalf("webos.New: %v", err)
	}
	err = client.Probe(context.Background())
	if err == nil {
		t.Fatal("expected probe failure")
	}
	if !services.Transient(err) {
		t.Fatalf("expected transient classification, got %v", err)
	}
}

func TestPairingHandshake(t *testing.T) {
	polls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pair/request":
			fmt.Fprint(w, `{"requestId":"req-1"}`)
		case "/pair/status":
			if r.URL.Query().Get("request") != "req-1" {
				http.NotFound(w, r)
				return
			}
			polls++
			if polls < 2 {
				fmt.Fprint(w, `{"state":"pending"}`)
				return
			}
			fmt.Fprint(w, `{"state":"accepted","token":"tok-xyz"}`)
		default:
			http.NotFound(w, r)
		}
	}))

	ctx := context.Background()
	requestID, err := client.RequestPairing(ctx, webos.PairingRequest{ClientID: "cid", ClientName: "tvship"})
	if err != nil {
		t.Fatalf("RequestPairing: %v", err)
	}
	status, err := client.PairingStatus(ctx, requestID)
	if err != nil {
		t.Fatalf("PairingStatus: %v", err)
	}
	if status.State != webos.PairingPending {
		t.Fatalf("expected pending, got %q", status.State)
	}
	status, err = client.PairingStatus(ctx, requestID)
	if err != nil {
		t.Fatalf("PairingStatus: %v", err)
	}
	if status.State != webos.PairingAccepted || status.Token != "tok-xyz" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestInstallStreamsArtifactAndAuthenticates(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "foo.ipk")
	if err := os.WriteFile(artifact, []byte("ipk-bytes"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	var gotBody []byte
	var gotAuth, gotChecksum string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/apps/install" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotChecksum = r.Header.Get("X-Package-Checksum")
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"status":"installed"}`)
	}), webos.WithToken("tok-abc"))

	err := client.Install(context.Background(), webos.InstallRequest{
		PackageID: "com.example.foo",
		Version:   "1.0.0",
		Checksum:  "deadbeef",
		Path:      artifact,
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if string(gotBody) != "ipk-bytes" {
		t.Fatalf("artifact body mismatch: %q", gotBody)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotChecksum != "deadbeef" {
		t.Fatalf("unexpected checksum header: %q", gotChecksum)
	}
}

func TestInstallRejectionIsNotTransient(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "foo.ipk")
	if err := os.WriteFile(artifact, []byte("x"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"rejected","reason":"signature invalid"}`)
	}))

	err := client.Install(context.Background(), webos.InstallRequest{PackageID: "com.example.foo", Path: artifact})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !webos.Rejected(err) {
		t.Fatalf("expected rejection classification, got %v", err)
	}
	if services.Transient(err) {
		t.Fatalf("rejection must not be transient: %v", err)
	}
}

func TestLaunchFailureCarriesReason(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"failed","reason":"missing dependency"}`)
	}))

	err := client.Launch(context.Background(), "com.example.foo")
	if err == nil || !webos.Rejected(err) {
		t.Fatalf("expected rejected launch, got %v", err)
	}
}

func TestTailParsesEventsAndSkipsGarbage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/logs" {
			http.NotFound(w, r)
			return
		}
		if cursor := r.URL.Query().Get("cursor"); cursor != "5" {
			t.Errorf("unexpected cursor %q", cursor)
		}
		fmt.Fprintln(w, `{"seq":6,"ts":"2026-01-01T00:00:00Z","level":"info","app":"com.example.foo","line":"started"}`)
		fmt.Fprintln(w, `not json`)
		fmt.Fprintln(w, `{"seq":7,"level":"error","app":"com.example.foo","line":"boom"}`)
	}))

	reader, err := client.Tail(context.Background(), webos.LogQuery{Cursor: 5})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	defer reader.Close()

	first, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Seq != 6 || first.Line != "started" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	second, err := reader.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Seq != 7 || second.Level != "error" {
		t.Fatalf("unexpected second event: %+v", second)
	}
	if _, err := reader.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
