package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/svidal-nlive/instrumental-dbo/internal/config"
	"github.com/svidal-nlive/instrumental-dbo/internal/processor"
	"github.com/svidal-nlive/instrumental-dbo/internal/queue"
)

// idlePollInterval bounds how often an empty queue is re-checked
// during the run loop.
const idlePollInterval = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Processor loop (default)",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runLoop(false, false)
	},
}

var dryRun bool

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Claim and process the single oldest job, then exit",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runLoop(true, dryRun)
	},
}

func init() {
	runOnceCmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"plan chunks and run separation, then stop before encoding, publishing, or writing a manifest")
}

// runLoop drives the Processor against the configured queues. With
// once set it claims and processes at most one job before returning;
// otherwise it loops until a shutdown signal arrives, finishing the
// in-flight job before exiting (§6.4 cancellation contract). dryRun is
// only meaningful with once set; it is threaded through to the
// Processor unchanged.
func runLoop(once, dryRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	lock, err := acquireSingleton(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	snapshot := config.NewSnapshot(cfg)
	proc, err := buildProcessor(snapshot, logger)
	if err != nil {
		return err
	}
	consumer := buildConsumer(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// lastSourceDir tracks the prior iteration's claimed bundle
	// directory so the next claim can prefer its still-queued album
	// siblings over the global-oldest candidate (§4.5).
	var lastSourceDir string

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown signal received, exiting")
			return nil
		default:
		}

		// The in-flight job is not cancelled by a shutdown signal; ctx is
		// checked again before the next claim.
		processed, sourceDir, err := claimAndProcessOne(context.WithoutCancel(ctx), consumer, proc, lastSourceDir, dryRun)
		if err != nil {
			return err
		}
		if processed {
			lastSourceDir = sourceDir
		} else {
			lastSourceDir = ""
		}
		if once {
			return nil
		}
		if !processed {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idlePollInterval):
			}
		}
	}
}

// claimAndProcessOne claims a job, preferring an unclaimed sibling of
// priorSourceDir's album (§4.5) over the global-oldest candidate, runs
// it through the Processor, and archives it per the outcome's
// disposition. It returns processed=false when there was nothing to
// claim, and the claimed bundle's original (pre-claim) directory so
// the caller can track album priority into the next iteration.
func claimAndProcessOne(ctx context.Context, consumer *queue.Consumer, proc *processor.Processor, priorSourceDir string, dryRun bool) (bool, string, error) {
	jobs, err := consumer.Discover()
	if err != nil {
		return false, "", fatalFSErrf("discover jobs: %w", err)
	}
	if len(jobs) == 0 {
		return false, "", nil
	}

	next := jobs[0]
	if priorSourceDir != "" {
		if siblings := queue.AlbumSiblings(jobs, priorSourceDir); len(siblings) > 0 {
			next = siblings[0]
		}
	}

	claim, err := consumer.Claim(next)
	if err != nil {
		if errors.Is(err, queue.ErrClaimLost) {
			return false, "", nil
		}
		return false, "", fatalFSErrf("claim job: %w", err)
	}

	outcome, procErr := proc.ProcessClaim(ctx, claim, dryRun)
	// A corrupt input has already been moved to its reject destination
	// by the Processor, leaving nothing in the working area to archive.
	if _, statErr := os.Stat(claim.WorkDir); statErr == nil {
		if archiveErr := consumer.Archive(claim, outcome.Disposition); archiveErr != nil {
			return true, "", fatalFSErrf("archive claim: %w", archiveErr)
		}
	}
	if procErr != nil {
		return true, claim.SourceID, procErr
	}
	return true, claim.SourceID, nil
}
