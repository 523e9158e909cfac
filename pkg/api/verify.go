package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/libreseed/pkgverify/internal/report"
	"github.com/libreseed/pkgverify/pkg/validation"
)

// VerifyRequest names a package directory relative to the served root.
type VerifyRequest struct {
	PackageDir string `json:"package_dir"`
}

// VerifyHandlers serves verification of packages extracted below Root.
type VerifyHandlers struct {
	Root    string
	Options []validation.Option
	Logger  *zap.Logger
	Stats   *Statistics
}

// NewVerifyHandlers creates verification handlers for packages under root.
func NewVerifyHandlers(root string, logger *zap.Logger, opts ...validation.Option) *VerifyHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerifyHandlers{
		Root:    root,
		Options: opts,
		Logger:  logger,
		Stats:   NewStatistics(),
	}
}

// HandleVerify handles POST /api/v1/verify.
//
// Intact and corrupted packages both answer 200 with the report; the report
// status tells them apart. Directories that are not verifiable packages answer
// 422 with the report attached to the error details.
func (h *VerifyHandlers) HandleVerify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			WriteError(w, r, MethodNotAllowed())
			return
		}

		var req VerifyRequest
		if err := ParseJSON(r, &req); err != nil {
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				apiErr = BadRequest(err.Error())
			}
			WriteError(w, r, apiErr)
			return
		}

		dir, apiErr := h.resolve(req.PackageDir)
		if apiErr != nil {
			WriteError(w, r, apiErr)
			return
		}

		opts := append(h.Options[:len(h.Options):len(h.Options)],
			validation.WithLogger(h.Logger.With(zap.String("request_id", GetRequestID(r)))))
		result, err := validation.Verify(r.Context(), dir, opts...)
		if ctxErr := r.Context().Err(); ctxErr != nil {
			// Client went away; nobody is left to read the answer
			h.Logger.Debug("verification abandoned", zap.String("package_dir", req.PackageDir), zap.Error(ctxErr))
			return
		}

		rep := report.New(GetRequestID(r), req.PackageDir, result, err)
		h.Stats.Record(rep)
		switch rep.Status {
		case report.StatusOK, report.StatusCorrupted:
			_ = WriteSuccess(w, rep)
		case report.StatusUnverifiable:
			WriteError(w, r, Unverifiable(rep.Error).WithDetail("report", rep))
		default:
			h.Logger.Error("verification failed", zap.String("package_dir", req.PackageDir), zap.Error(err))
			WriteError(w, r, InternalServerError("verification failed").WithDetail("report", rep))
		}
	}
}

// HandleStats handles GET /api/v1/stats.
func (h *VerifyHandlers) HandleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			WriteError(w, r, MethodNotAllowed())
			return
		}
		_ = WriteSuccess(w, h.Stats.Snapshot())
	}
}

// resolve maps a request path onto a directory below the root.
func (h *VerifyHandlers) resolve(packageDir string) (string, *APIError) {
	if packageDir == "" {
		return "", BadRequest("package_dir is required")
	}
	if !filepath.IsLocal(filepath.FromSlash(packageDir)) {
		return "", Forbidden("package_dir must stay below the served root").
			WithDetail("package_dir", packageDir)
	}

	dir := filepath.Join(h.Root, filepath.FromSlash(packageDir))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", NotFound("package directory " + packageDir)
	}
	return dir, nil
}
