package main

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"tapedeck/internal/kvstore"
	"tapedeck/internal/services"
	"tapedeck/internal/services/audible"
	"tapedeck/internal/testsupport"
)

func TestLibraryRequiresLogin(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, env, nil, "library")
	if !errors.Is(err, services.ErrAuthorization) {
		t.Fatalf("expected ErrAuthorization, got %v", err)
	}
	if hint := services.FailureHint(err); hint == "" {
		t.Fatal("expected a failure hint")
	}
}

func TestLibraryListsBooks(t *testing.T) {
	env := setupCLITestEnv(t)
	env.login(t)

	out, _, err := runCLI(t, env, nil, "library", "--limit", "10")
	if err != nil {
		t.Fatalf("library: %v", err)
	}
	requireContains(t, out, "audible:"+testASIN)
	requireContains(t, out, "Project Hail Mary")
	requireContains(t, out, "Andy Weir")
	requireContains(t, out, "16h10m")
	if strings.Contains(out, "More books may follow") {
		t.Fatalf("short page should not suggest another page: %q", out)
	}
}

func TestLibraryJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	env.login(t)

	out, _, err := runCLI(t, env, nil, "library", "--json")
	if err != nil {
		t.Fatalf("library --json: %v", err)
	}
	var views []assetView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode: %v (%q)", err, out)
	}
	if len(views) != 1 || views[0].ID != "audible:"+testASIN || !views[0].Downloadable {
		t.Fatalf("views = %+v", views)
	}
	if views[0].PublishedAt != "2021-05-04" {
		t.Fatalf("published = %q", views[0].PublishedAt)
	}
}

func TestShowReportsLocalState(t *testing.T) {
	env := setupCLITestEnv(t)
	env.login(t)
	testsupport.WriteFile(t, env.outputPath(), 128)
	store := env.openStore(t)
	if err := store.BeginFetch(context.Background(), "audible:"+testASIN, "Project Hail Mary"); err != nil {
		t.Fatal(err)
	}
	if err := store.FinishFetch(context.Background(), "audible:"+testASIN, kvstore.FetchCompleted, env.outputPath(), 128, nil); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, env, nil, "show", testASIN)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "== Project Hail Mary ==")
	requireContains(t, out, "Ray Porter")
	requireContains(t, out, env.outputPath())
	requireContains(t, out, "completed at")
	requireContains(t, out, "English")
}

func TestFetchExistingOutputSkipsDownload(t *testing.T) {
	env := setupCLITestEnv(t)
	env.login(t)
	testsupport.WriteFile(t, env.outputPath(), 256)

	out, _, err := runCLI(t, env, nil, "fetch", "audible:"+testASIN)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	requireContains(t, out, env.outputPath())

	for _, req := range env.seenRequests() {
		if strings.Contains(req, "licenserequest") || strings.Contains(req, "activation") {
			t.Fatalf("existing output triggered %s", req)
		}
	}
	if want := "GET /1.0/library/" + testASIN; !slices.Contains(env.seenRequests(), want) {
		t.Fatalf("requests = %v, want %s", env.seenRequests(), want)
	}

	record, err := env.openStore(t).GetFetch(context.Background(), "audible:"+testASIN)
	if err != nil || record == nil {
		t.Fatalf("GetFetch = %v, %v", record, err)
	}
	if record.Status != kvstore.FetchSkipped || record.Bytes != 256 {
		t.Fatalf("record = %+v", record)
	}
}

func TestStatusWithoutLogin(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, nil, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Environment ==")
	requireContains(t, out, "Marketplace")
	requireContains(t, out, "not logged in")
	requireContains(t, out, "== Recent fetches ==")
	requireContains(t, out, "none")
}

func TestStatusListsAndResetsFetches(t *testing.T) {
	env := setupCLITestEnv(t)
	store := env.openStore(t)
	if err := store.BeginFetch(context.Background(), "audible:B1", "Stuck Book"); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, env, nil, "status", "--reset-stuck")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Marked 1 interrupted fetch(es) as cancelled")
	requireContains(t, out, "Stuck Book")
	requireContains(t, out, string(kvstore.FetchCancelled))
}

func TestLoginPrintsSignInURL(t *testing.T) {
	env := setupCLITestEnv(t)
	stdin := strings.NewReader("https://www.amazon.com/some/other/page\n")

	out, _, err := runCLI(t, env, stdin, "login", "--country", "uk")
	if !errors.Is(err, audible.ErrOAuth) {
		t.Fatalf("expected ErrOAuth after EOF, got %v", err)
	}
	requireContains(t, out, "https://www.amazon.co.uk/ap/signin")
	requireContains(t, out, "User-Agent:")
	requireContains(t, out, "not the sign-in landing page")
}

func TestTranscribeRejectsBadFlags(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, nil, "transcribe", testASIN, "--chunks", "0"); err == nil {
		t.Fatal("expected error for zero chunks")
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatRuntime(970); got != "16h10m" {
		t.Fatalf("formatRuntime = %q", got)
	}
	if got := formatRuntime(0); got != "-" {
		t.Fatalf("formatRuntime(0) = %q", got)
	}
	if got := formatTimestamp(3725.9); got != "01:02:05" {
		t.Fatalf("formatTimestamp = %q", got)
	}
	if got := formatBytes(1536); got != "1.5 KiB" {
		t.Fatalf("formatBytes = %q", got)
	}
}
