package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"boardedit/internal/document"
	"boardedit/internal/logging"
	"boardedit/internal/security"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// checkResult is the outcome for one file.
type checkResult struct {
	Path  string
	Bytes int
	Nodes int
	Err   error
}

// runCheck parses and prints every file and reports any that do not
// reproduce their input exactly.
func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	gate, err := currentConfig().Gate()
	if err != nil {
		return err
	}
	results, err := checkFiles(ctx, gate, args, checkJobs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", failStyle.Render("FAIL"), r.Path, r.Err)
			continue
		}
		fmt.Fprintf(out, "%s %s %s\n", okStyle.Render("ok  "), r.Path,
			mutedStyle.Render(fmt.Sprintf("(%d bytes, %d nodes)", r.Bytes, r.Nodes)))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed the round-trip check", failed, len(results))
	}
	return nil
}

// checkFiles checks paths concurrently. Per-file failures are reported in
// the results; only cancellation aborts the batch.
func checkFiles(ctx context.Context, gate security.Gate, paths []string, jobs int) ([]checkResult, error) {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	results := make([]checkResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = checkFile(gate, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func checkFile(gate security.Gate, path string) checkResult {
	r := checkResult{Path: path}
	if err := gate.ValidatePath(path, security.Read); err != nil {
		r.Err = err
		return r
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.Err = err
		return r
	}
	r.Bytes = len(data)
	doc, err := document.Parse(path, data)
	if err != nil {
		r.Err = err
		return r
	}
	r.Nodes = doc.Tree().Len()
	if text := doc.Text(); text != string(data) {
		r.Err = fmt.Errorf("printed text differs from input at byte %d", firstDifference(text, string(data)))
		logging.Get(logging.CategoryParse).Error("round trip mismatch in %s", path)
	}
	return r
}

func firstDifference(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
