package cli

import (
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/libreseed/pkgverify/internal/report"
	"github.com/libreseed/pkgverify/internal/watcher"
	"github.com/libreseed/pkgverify/pkg/validation"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <package-dir>",
		Short: "Re-verify a package every time it changes",
		Long: `Watch verifies a package once, keeps its manifest in memory and re-verifies
the directory after every filesystem change until interrupted. A report is
printed for every check whose outcome differs from the previous one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd, args[0])
		},
	}

	addVerifyFlags(cmd)
	cmd.Flags().Duration("debounce", watcher.DefaultDebounce, "quiet period after a change before re-verifying")
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, dir string) error {
	opts, err := a.validationOptions()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	// Resolve identity and manifest once; the watcher holds them from then on
	result, err := validation.Verify(ctx, dir, opts...)
	initial := report.New(a.runID, dir, result, err)
	if encodeErr := report.Encode(out, a.cfg.Output.Format, []*report.Report{initial}); encodeErr != nil {
		return encodeErr
	}
	if result == nil {
		return &ExitError{Code: ExitUnverifiable}
	}

	var (
		mu         sync.Mutex
		lastStatus = initial.Status
	)
	handler := func(res watcher.Result) {
		r := report.New(a.runID, dir, result, res.Err)
		r.Duration = ""

		mu.Lock()
		changed := r.Status != lastStatus
		lastStatus = r.Status
		mu.Unlock()

		if !changed {
			return
		}
		if err := report.Encode(out, a.cfg.Output.Format, []*report.Report{r}); err != nil {
			a.logger.Error("failed to write report", zap.Error(err))
		}
	}

	w, err := watcher.New(dir, result.Paths, handler, a.logger, a.cfg.Watch.Debounce, opts...)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	if err := w.Stop(); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if lastStatus != report.StatusOK {
		return &ExitError{Code: ExitCorrupted}
	}
	return nil
}
