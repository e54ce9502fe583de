package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newEngine(workers int) *Engine {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Engine{Workers: workers, Log: l, Alert: l}
}

func write(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun_WritesTwoSpaceSidecars(t *testing.T) {
	dir := t.TempDir()
	content := "@read1\nACGTACGT\n+\nIIIIIIII\n"
	f := filepath.Join(dir, "sample1.fastq.gz")
	write(t, f, content)

	sum, err := newEngine(2).Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sum.Digests) != 1 || sum.Written != 2 || sum.Skipped != 0 {
		t.Fatalf("summary: %+v", sum)
	}

	m := md5.Sum([]byte(content))
	s := sha512.Sum512([]byte(content))
	want := map[string]string{
		f + ".md5":    hex.EncodeToString(m[:]) + "  sample1.fastq.gz\n",
		f + ".sha512": hex.EncodeToString(s[:]) + "  sample1.fastq.gz\n",
	}
	for path, w := range want {
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(b) != w {
			t.Fatalf("%s: got %q want %q", path, b, w)
		}
	}
}

func TestRun_IdempotentSidecars(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "sample1.fastq.gz")
	write(t, f, "payload")
	e := newEngine(1)
	if _, err := e.Run(context.Background(), dir); err != nil {
		t.Fatalf("first run: %v", err)
	}

	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	before := map[string][]byte{}
	for _, ext := range []string{ExtMD5, ExtSHA512} {
		if err := os.Chtimes(f+ext, old, old); err != nil {
			t.Fatal(err)
		}
		before[ext], _ = os.ReadFile(f + ext)
	}

	sum, err := e.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Written != 0 || sum.Skipped != 2 {
		t.Fatalf("second summary: %+v", sum)
	}
	for _, ext := range []string{ExtMD5, ExtSHA512} {
		fi, err := os.Stat(f + ext)
		if err != nil {
			t.Fatal(err)
		}
		if !fi.ModTime().Equal(old) {
			t.Fatalf("%s mtime changed: %v", ext, fi.ModTime())
		}
		after, _ := os.ReadFile(f + ext)
		if string(after) != string(before[ext]) {
			t.Fatalf("%s content changed", ext)
		}
	}
}

func TestRun_DigestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "p", "run.QC.tar")
	write(t, f, strings.Repeat("tar-bytes", 10000))
	if _, err := newEngine(0).Run(context.Background(), dir); err != nil {
		t.Fatalf("run: %v", err)
	}
	fresh, err := HashFile(f)
	if err != nil {
		t.Fatal(err)
	}
	recorded, err := ReadSidecar(f, ExtSHA512)
	if err != nil {
		t.Fatal(err)
	}
	if recorded != fresh.SHA512 {
		t.Fatalf("sha512 mismatch: %s vs %s", recorded, fresh.SHA512)
	}
}

func TestRun_OversizeSidecarIsLoggedNotFatal(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.zip")
	write(t, f, "zip")
	write(t, f+ExtMD5, strings.Repeat("x", 300))

	e := newEngine(1)
	e.MaxSidecarBytes = 200
	sum, err := e.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("oversize must not be fatal: %v", err)
	}
	if len(sum.Oversize) != 1 || sum.Oversize[0] != f+ExtMD5 {
		t.Fatalf("oversize: %v", sum.Oversize)
	}
}

func TestDiscover_SelectionAndOrder(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{
		"b/S1_R1.fastq.gz", "a/S1_fastqc.zip", "x.tar", "x.tar.md5", "x.tar.sha512",
		"notes.txt", "S1_fastqc.html", "a/S1_R1.fastq",
	} {
		write(t, filepath.Join(dir, n), n)
	}
	got, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	var rel []string
	for _, p := range got {
		r, _ := filepath.Rel(dir, p)
		rel = append(rel, r)
	}
	if strings.Join(rel, ",") != "a/S1_fastqc.zip,b/S1_R1.fastq.gz,x.tar" {
		t.Fatalf("selected: %v", rel)
	}
}

func TestDiscover_RejectsNonRegular(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "real.fastq.gz"), "x")
	if err := os.Symlink(filepath.Join(dir, "real.fastq.gz"), filepath.Join(dir, "link.fastq.gz")); err != nil {
		t.Skipf("symlink: %v", err)
	}
	if _, err := Discover(dir); !errors.Is(err, ErrNotRegular) {
		t.Fatalf("want ErrNotRegular, got %v", err)
	}
}

func TestParseSidecar(t *testing.T) {
	d, n, err := ParseSidecar([]byte("abc123  sample1.fastq.gz\n"))
	if err != nil || d != "abc123" || n != "sample1.fastq.gz" {
		t.Fatalf("got %q %q %v", d, n, err)
	}
	if _, _, err := ParseSidecar([]byte("abc123 sample1.fastq.gz\n")); err == nil {
		t.Fatal("single space must be rejected")
	}
}

func TestFanOut_PreservesOrderAndStopsOnError(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out, err := fanOut(context.Background(), 3, in, func(i int) (int, error) { return i * i, nil })
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out {
		if v != in[i]*in[i] {
			t.Fatalf("order: %v", out)
		}
	}
	boom := errors.New("boom")
	_, err = fanOut(context.Background(), 2, in, func(i int) (int, error) {
		if i == 5 {
			return 0, boom
		}
		return i, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}
