package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	database "github.com/drummonds/pdf2img/database"
	"github.com/drummonds/pdf2img/engine/pdftest"
)

// setupCLI isolates a test from the caller's environment and working directory
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"PDF2IMG_OUTPUT", "PDF2IMG_DPI", "PDF2IMG_FORMAT", "PDF2IMG_MIN_WIDTH",
		"PDF2IMG_MIN_HEIGHT", "PDF2IMG_JPEG_QUALITY", "PDF2IMG_RENDERER",
		"PDF2IMG_HISTORY_DB", "LOG_OUTPUT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	color.NoColor = true
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func assertFiles(t *testing.T, dir string, want ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read output directory: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Expected files %v, got %v", want, got)
	}
}

func TestCLIConvertsAllPagesToDefaultOutput(t *testing.T) {
	dir := setupCLI(t)
	pdf := pdftest.Pages(2).Write(t, dir, "doc.pdf")

	code, stdout, stderr := runCLI(t, pdf, "-d", "72")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
	}
	assertFiles(t, filepath.Join(dir, "output"), "page_1.png", "page_2.png")

	if !strings.Contains(stdout, "Successfully converted 2 page(s)") {
		t.Errorf("Expected conversion summary, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "All files saved to: output/") {
		t.Errorf("Expected output location, got:\n%s", stdout)
	}
}

func TestCLIPageSelection(t *testing.T) {
	dir := setupCLI(t)
	pdf := pdftest.Pages(5).Write(t, dir, "doc.pdf")

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"trailing page numbers", []string{"-p", "1", "3"}, []string{"page_1.png", "page_3.png"}},
		{"range and list", []string{"-p", "2-3,5"}, []string{"page_2.png", "page_3.png", "page_5.png"}},
		{"repeated flag", []string{"-p", "4", "-p", "1"}, []string{"page_1.png", "page_4.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out")
			args := append([]string{pdf, "-o", out, "-d", "72"}, tt.args...)
			code, _, stderr := runCLI(t, args...)
			if code != 0 {
				t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
			}
			assertFiles(t, out, tt.want...)
		})
	}
}

func TestCLIJPEGFormat(t *testing.T) {
	dir := setupCLI(t)
	pdf := pdftest.Pages(1).Write(t, dir, "doc.pdf")
	out := filepath.Join(dir, "jpegs")

	code, _, stderr := runCLI(t, pdf, "-f", "jpeg", "-d", "72", "-o", out, "--prefix", "scan")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
	}
	assertFiles(t, out, "scan_page_1.jpg")
}

func TestCLIExtractOnly(t *testing.T) {
	dir := setupCLI(t)
	pdf := pdftest.Doc{Pages: []pdftest.Page{{
		Images: []pdftest.Image{{Width: 40, Height: 40}, {Width: 200, Height: 150}},
	}}}.Write(t, dir, "images.pdf")
	out := filepath.Join(dir, "out")

	code, stdout, stderr := runCLI(t, pdf, "-e", "-o", out)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
	}
	// -e without -p does not render pages
	assertFiles(t, out, "page_1_img_1.png")
	if !strings.Contains(stdout, "Successfully extracted 1 image(s)") {
		t.Errorf("Expected extraction summary, got:\n%s", stdout)
	}

	// Lowering the threshold picks up the small image too
	out2 := filepath.Join(dir, "out2")
	code, _, stderr = runCLI(t, pdf, "-e", "-o", out2, "--min-width", "10", "--min-height", "10", "-p", "1", "-d", "72")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
	}
	assertFiles(t, out2, "page_1.png", "page_1_img_1.png", "page_1_img_2.png")
}

func TestCLIInfo(t *testing.T) {
	dir := setupCLI(t)
	doc := pdftest.Pages(7)
	doc.Title = "Seven"
	doc.Pages[0].Images = []pdftest.Image{{Width: 10, Height: 10}}
	pdf := doc.Write(t, dir, "seven.pdf")

	code, stdout, stderr := runCLI(t, pdf, "-i")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
	}
	for _, want := range []string{
		"Total pages: 7",
		"title: Seven",
		"Page 5:",
		"Size: 612.0 x 792.0 points",
		"Images: 1",
		"... and 2 more pages",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("Expected %q in info output:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "Page 6:") {
		t.Errorf("Info should stop after five pages:\n%s", stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, "output")); !os.IsNotExist(err) {
		t.Error("Info must not create the output directory")
	}
}

func TestCLIInfoJSON(t *testing.T) {
	dir := setupCLI(t)
	pdf := pdftest.Pages(6).Write(t, dir, "six.pdf")

	code, stdout, stderr := runCLI(t, pdf, "-i", "--json")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
	}
	var info documentInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("Failed to parse JSON output: %v\n%s", err, stdout)
	}
	if info.Pages != 6 || len(info.PageInfo) != 6 {
		t.Errorf("Expected 6 pages described, got %d/%d", info.Pages, len(info.PageInfo))
	}
}

func TestCLIConvertJSON(t *testing.T) {
	dir := setupCLI(t)
	pdf := pdftest.Pages(2).Write(t, dir, "doc.pdf")

	code, stdout, stderr := runCLI(t, pdf, "-d", "72", "--json")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
	}
	var res result
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("Failed to parse JSON output: %v\n%s", err, stdout)
	}
	if len(res.Pages) != 2 || res.Pages[1].Page != 2 {
		t.Errorf("Expected two pages in JSON output, got %+v", res.Pages)
	}
	if res.Pages[0].Bytes == 0 {
		t.Error("Expected file sizes in JSON output")
	}
}

func TestCLIErrorsExitNonZero(t *testing.T) {
	dir := setupCLI(t)
	pdf := pdftest.Pages(2).Write(t, dir, "doc.pdf")
	garbage := filepath.Join(dir, "garbage.pdf")
	if err := os.WriteFile(garbage, pdftest.Garbage(), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	locked := pdftest.Doc{Pages: []pdftest.Page{pdftest.Letter}, UserPassword: "secret"}.Write(t, dir, "locked.pdf")
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	tests := []struct {
		name    string
		args    []string
		message string
	}{
		{"no arguments", nil, "arg"},
		{"missing file", []string{filepath.Join(dir, "nope.pdf")}, "file not found"},
		{"corrupt file", []string{garbage}, "corrupt or encrypted"},
		{"encrypted file", []string{locked}, "corrupt or encrypted"},
		{"page out of range", []string{pdf, "-p", "3"}, "out of range"},
		{"page zero", []string{pdf, "-p", "0"}, "out of range"},
		{"bad page spec", []string{pdf, "-p", "two"}, "invalid page number"},
		{"bad format", []string{pdf, "-f", "gif"}, "unsupported image format"},
		{"bad dpi", []string{pdf, "-d", "0"}, "DPI must be positive"},
		{"unknown renderer", []string{pdf, "--renderer", "ghostscript"}, "invalid option"},
		{"unwritable output", []string{pdf, "-d", "72", "-o", blocker}, "cannot write output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != 1 {
				t.Errorf("Expected exit code 1, got %d", code)
			}
			if !strings.HasPrefix(stderr, "Error: ") {
				t.Errorf("Expected stderr to start with 'Error: ', got %q", stderr)
			}
			if !strings.Contains(stderr, tt.message) {
				t.Errorf("Expected %q in stderr, got %q", tt.message, stderr)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "output")); !os.IsNotExist(err) {
		t.Error("Failed runs must not leave an output directory behind")
	}
}

func TestCLIRecordsHistory(t *testing.T) {
	dir := setupCLI(t)
	pdf := pdftest.Pages(1).Write(t, dir, "doc.pdf")
	historyDB := filepath.Join(dir, "history.db")

	if code, _, stderr := runCLI(t, pdf, "-d", "72", "--history", historyDB); code != 0 {
		t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
	}
	if code, _, _ := runCLI(t, filepath.Join(dir, "missing.pdf"), "--history", historyDB); code != 1 {
		t.Fatalf("Expected exit code 1 for missing file, got %d", code)
	}

	code, stdout, stderr := runCLI(t, "history", "--history", historyDB, "--json")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d (stderr: %s)", code, stderr)
	}
	var jobs []database.Job
	if err := json.Unmarshal([]byte(stdout), &jobs); err != nil {
		t.Fatalf("Failed to parse history: %v\n%s", err, stdout)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}

	// Newest first
	if jobs[0].Status != database.JobStatusFailed || !strings.Contains(jobs[0].Error, "file not found") {
		t.Errorf("Expected the failed run first, got %+v", jobs[0])
	}
	if jobs[1].Status != database.JobStatusCompleted || jobs[1].Outputs != 1 || jobs[1].Type != database.JobTypeConvert {
		t.Errorf("Expected a completed convert job with 1 output, got %+v", jobs[1])
	}

	code, stdout, _ = runCLI(t, "history", "--history", historyDB, "--limit", "1")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout, "failed") || strings.Contains(stdout, "completed") {
		t.Errorf("Expected only the newest job in table output:\n%s", stdout)
	}

	code, stdout, _ = runCLI(t, "history", "--history", historyDB, "--prune", "0s")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d", code)
	}
	if !strings.Contains(stdout, "No jobs recorded") {
		t.Errorf("Expected an empty history after pruning, got:\n%s", stdout)
	}
}

func TestCLIHistoryRequiresDatabase(t *testing.T) {
	setupCLI(t)
	code, _, stderr := runCLI(t, "history")
	if code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr, "no history database") {
		t.Errorf("Expected a hint about --history, got %q", stderr)
	}
}
