package core

import (
	"context"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"yaami/config"
	"yaami/logging"
	"yaami/metrics"
	"yaami/protocols"
)

// ItemResult is the outcome of one batch entry. Err is nil on success and
// for skipped directories.
type ItemResult struct {
	Entry     protocols.DirectoryEntry
	LocalPath string
	Skipped   bool
	Err       error
}

// Outcome summarizes a batch download. Err aggregates the per-item failures.
type Outcome struct {
	Succeeded int
	Failed    int
	Skipped   int
	Items     []ItemResult
	Err       error
}

// add folds another batch into o.
func (o *Outcome) add(b Outcome) {
	o.Succeeded += b.Succeeded
	o.Failed += b.Failed
	o.Skipped += b.Skipped
	o.Items = append(o.Items, b.Items...)
	if b.Err != nil {
		o.Err = multierror.Append(o.Err, b.Err)
	}
}

type TransferManager struct {
	service *Service
}

func NewTransferManager(service *Service) *TransferManager {
	return &TransferManager{service: service}
}

// DownloadBatch downloads every file entry into destDir, one after another in
// the given order. Directories are skipped. Each file gets its own session and
// a failure never stops the remaining entries.
func (tm *TransferManager) DownloadBatch(ctx context.Context, p config.Profile, entries []protocols.DirectoryEntry, destDir string) Outcome {
	var out Outcome
	var errs *multierror.Error

	for _, entry := range entries {
		if entry.IsDir {
			out.Skipped++
			out.Items = append(out.Items, ItemResult{Entry: entry, Skipped: true})
			continue
		}

		localPath := filepath.Join(destDir, entry.Name)
		err := tm.service.DownloadFile(ctx, p, entry.Path, localPath)
		out.Items = append(out.Items, ItemResult{Entry: entry, LocalPath: localPath, Err: err})
		if err != nil {
			out.Failed++
			errs = multierror.Append(errs, err)
			continue
		}
		out.Succeeded++
		logging.Debug("downloaded",
			logging.String("connection", p.Name),
			logging.String("remote", entry.Path),
			logging.String("local", localPath),
			logging.Int64("size", entry.Size),
		)
	}

	out.Err = errs.ErrorOrNil()
	metrics.RecordBatch(out.Succeeded, out.Failed, out.Skipped)

	if out.Err != nil {
		logging.Warn("batch download finished with failures",
			logging.String("connection", p.Name),
			logging.Int("succeeded", out.Succeeded),
			logging.Int("failed", out.Failed),
			logging.Err(out.Err),
		)
	} else {
		logging.Info("batch download finished",
			logging.String("connection", p.Name),
			logging.Int("succeeded", out.Succeeded),
			logging.Int("skipped", out.Skipped),
		)
	}
	return out
}
