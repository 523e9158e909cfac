package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/libreseed/pkgverify/internal/report"
	"github.com/libreseed/pkgverify/pkg/validation"
)

func newVerifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <package-dir>...",
		Short: "Verify extracted packages against their manifest",
		Long: `Verify checks every file, symbolic link and directory declared by each package
against the package directory.

Exit status is 0 when every package matches, 1 when at least one entry is
corrupted and 2 when a directory is not a verifiable package.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runVerify(cmd, args)
		},
	}

	addVerifyFlags(cmd)
	cmd.Flags().String("report-file", "", "also write the report to this file")
	return cmd
}

func (a *app) runVerify(cmd *cobra.Command, dirs []string) error {
	opts, err := a.validationOptions()
	if err != nil {
		return err
	}

	reports := make([]*report.Report, 0, len(dirs))
	code := ExitOK
	for _, dir := range dirs {
		result, err := validation.Verify(cmd.Context(), dir, opts...)
		r := report.New(a.runID, dir, result, err)
		reports = append(reports, r)

		switch r.Status {
		case report.StatusUnverifiable:
			code = ExitUnverifiable
		case report.StatusCorrupted, report.StatusError:
			if code == ExitOK {
				code = ExitCorrupted
			}
		}

		if err := cmd.Context().Err(); err != nil {
			a.logger.Warn("verification interrupted", zap.Error(err))
			break
		}
	}

	if err := report.Encode(cmd.OutOrStdout(), a.cfg.Output.Format, reports); err != nil {
		return err
	}
	if path := a.cfg.Output.ReportFile; path != "" {
		if err := report.WriteFile(path, a.cfg.Output.Format, reports); err != nil {
			return err
		}
		a.logger.Info("report written", zap.String("path", path))
	}

	if code != ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}
