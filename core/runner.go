package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"

	"yaami/config"
	"yaami/logging"
	"yaami/metrics"
	"yaami/protocols"
)

// ProfileSource resolves a profile by id or name.
type ProfileSource interface {
	Get(ref string) (config.Profile, error)
}

// Runner downloads the matching files of remote directories on cron schedules.
type Runner struct {
	schedules []config.Schedule
	profiles  ProfileSource
	service   *Service
	transfer  *TransferManager
	cron      *cron.Cron
	chain     cron.Chain
	history   *History
	now       func() time.Time
	wg        sync.WaitGroup // runs started outside the scheduler
}

func NewRunner(schedules []config.Schedule, profiles ProfileSource, service *Service, transfer *TransferManager) *Runner {
	logger := cronLogger{}
	return &Runner{
		schedules: schedules,
		profiles:  profiles,
		service:   service,
		transfer:  transfer,
		cron:      cron.New(cron.WithLogger(logger)),
		chain:     cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		now:       time.Now,
	}
}

// UseHistory makes runs skip files already downloaded by the same schedule
// and record the ones they download.
func (r *Runner) UseHistory(h *History) {
	r.history = h
}

// Start registers every schedule and starts the scheduler. Schedules whose
// cron expression does not parse are reported and left out; the rest still
// run. A start-up run and the cron ticks of one schedule share a job, so
// they never overlap.
func (r *Runner) Start(ctx context.Context) error {
	var errs *multierror.Error
	for _, s := range r.schedules {
		s := s
		job := r.chain.Then(cron.FuncJob(func() { r.run(ctx, s) }))
		if _, err := r.cron.AddJob(s.Cron, job); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("schedule %s: %w", s.Name, err))
			continue
		}
		logging.Info("scheduled download",
			logging.String("schedule", s.Name),
			logging.String("cron", s.Cron),
			logging.Bool("recursive", s.Recursive),
			logging.Bool("run_on_start", s.RunOnStart),
		)

		if s.RunOnStart {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				job.Run()
			}()
		}
	}
	r.cron.Start()
	return errs.ErrorOrNil()
}

// Stop stops the scheduler and waits for running downloads to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, s config.Schedule) {
	out, err := r.RunOnce(ctx, s)
	if err != nil {
		logging.Error("scheduled download failed", logging.String("schedule", s.Name), logging.Err(err))
		return
	}
	logging.Info("scheduled download finished",
		logging.String("schedule", s.Name),
		logging.Int("succeeded", out.Succeeded),
		logging.Int("failed", out.Failed),
	)
}

// RunOnce lists the schedule's source directory and downloads the files that
// match its filters into the target directory, walking subdirectories when
// the schedule is recursive. The error covers failures before any download
// starts; per-file failures are in the Outcome.
func (r *Runner) RunOnce(ctx context.Context, s config.Schedule) (out Outcome, err error) {
	defer func() {
		metrics.RecordScheduledRun(s.Name, err == nil && out.Failed == 0)
	}()

	p, err := r.profiles.Get(s.Connection)
	if err != nil {
		return Outcome{}, err
	}

	re, err := regexp.Compile(s.SourceRegex)
	if err != nil {
		return Outcome{}, fmt.Errorf("invalid regex: %w", err)
	}

	w := walk{schedule: s, profile: p, match: re}
	if s.SourceNewerDays > 0 {
		w.cutoff = r.now().AddDate(0, 0, -s.SourceNewerDays)
	}
	if err := r.syncDir(ctx, &w, s.SourcePath, s.TargetPath, &out); err != nil {
		return Outcome{}, err
	}

	if r.history != nil {
		if out.Succeeded > 0 {
			at := r.now()
			for _, item := range out.Items {
				if !item.Skipped && item.Err == nil {
					r.history.Add(s.Name, item.Entry, item.LocalPath, at)
				}
			}
			if err := r.history.Save(); err != nil {
				logging.Warn("failed to save download history", logging.String("schedule", s.Name), logging.Err(err))
			}
		}
		if s.RetentionDays > 0 {
			r.removeExpired(s)
		}
	}
	return out, nil
}

type walk struct {
	schedule config.Schedule
	profile  config.Profile
	match    *regexp.Regexp
	cutoff   time.Time
}

// syncDir downloads the selected files of dir into target, then descends
// into subdirectories when the schedule is recursive. A subdirectory that
// cannot be listed is logged and skipped.
func (r *Runner) syncDir(ctx context.Context, w *walk, dir, target string, out *Outcome) error {
	entries, err := r.service.ListFiles(ctx, w.profile, dir)
	if err != nil {
		return err
	}

	var files, dirs []protocols.DirectoryEntry
	for _, e := range entries {
		switch {
		case e.IsDir:
			dirs = append(dirs, e)
		case !w.match.MatchString(e.Name):
		case !w.cutoff.IsZero() && e.ModTime.Before(w.cutoff):
		case r.history != nil && r.history.Seen(w.schedule.Name, e):
		default:
			files = append(files, e)
		}
	}

	if len(files) > 0 {
		out.add(r.transfer.DownloadBatch(ctx, w.profile, files, target))
	}

	if !w.schedule.Recursive {
		return nil
	}
	for _, d := range dirs {
		if err := r.syncDir(ctx, w, d.Path, filepath.Join(target, d.Name), out); err != nil {
			logging.Warn("failed to process subdirectory",
				logging.String("schedule", w.schedule.Name),
				logging.String("dir", d.Path),
				logging.Err(err),
			)
		}
	}
	return nil
}

// removeExpired deletes the local copies s downloaded more than
// RetentionDays ago. Copies that are already gone are ignored.
func (r *Runner) removeExpired(s config.Schedule) {
	cutoff := r.now().AddDate(0, 0, -s.RetentionDays)
	for remote, rec := range r.history.DownloadedBefore(s.Name, cutoff) {
		if rec.LocalPath == "" {
			continue
		}
		err := os.Remove(rec.LocalPath)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			logging.Warn("failed to remove expired download",
				logging.String("schedule", s.Name),
				logging.String("local", rec.LocalPath),
				logging.Err(err),
			)
			continue
		}
		logging.Info("removed expired download",
			logging.String("schedule", s.Name),
			logging.String("remote", remote),
			logging.String("local", rec.LocalPath),
		)
	}
}

// cronLogger routes scheduler messages to the structured logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.L().Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.L().Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
