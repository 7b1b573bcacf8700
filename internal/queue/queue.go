// Package queue implements the Queue Consumer: discovering claimable
// job bundles across configured queue roots, claiming one by atomic
// move, and archiving it on final disposition (§4.5).
package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/svidal-nlive/instrumental-dbo/internal/bundle"
	"github.com/svidal-nlive/instrumental-dbo/internal/fsutil"
)

// ErrClaimLost is returned when another consumer wins the race to
// claim a candidate; the caller should move on to the next candidate.
var ErrClaimLost = errors.New("queue: lost claim race")

// ClaimableJob is one ready bundle directory discovered under a queue root.
type ClaimableJob struct {
	QueueName string
	Dir       string
	JobID     string
	ModTime   time.Time
}

// ClaimedJob is a job that has been moved into the working root.
type ClaimedJob struct {
	Job      ClaimableJob
	WorkDir  string
	SourceID string
}

// Consumer discovers, claims, and archives job bundles across a set of
// named queue roots.
type Consumer struct {
	roots      map[string]string // name -> absolute root path
	order      []string          // queue name iteration order
	workingDir string
	archiveDir string
	tmpSuffix  string
}

// New constructs a Consumer. roots maps queue name to its root
// directory, iterated in the given order (the configuration's declared
// queue order, per §4.5).
func New(order []string, roots map[string]string, workingDir, archiveDir, tmpSuffix string) *Consumer {
	return &Consumer{roots: roots, order: order, workingDir: workingDir, archiveDir: archiveDir, tmpSuffix: tmpSuffix}
}

// Discover scans every configured queue root and returns claimable
// jobs ordered by oldest modification time first, tie-broken by
// job_id, per §4.5. A bundle directory is excluded when its name ends
// with the configured temporary suffix, or when job.json fails to
// parse. A directory directly under a root that has no job.json is
// treated as an album directory, and its subdirectories are scanned
// as bundles.
func (c *Consumer) Discover() ([]ClaimableJob, error) {
	var jobs []ClaimableJob

	for _, name := range c.order {
		root, ok := c.roots[name]
		if !ok {
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("queue: read queue root %s: %w", root, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() || strings.HasSuffix(entry.Name(), c.tmpSuffix) {
				continue
			}
			dir := filepath.Join(root, entry.Name())

			candidates := []string{dir}
			if _, err := os.Stat(filepath.Join(dir, "job.json")); os.IsNotExist(err) {
				// No job.json: an album directory holding one bundle per track.
				candidates = nil
				subs, _ := os.ReadDir(dir)
				for _, s := range subs {
					if s.IsDir() && !strings.HasSuffix(s.Name(), c.tmpSuffix) {
						candidates = append(candidates, filepath.Join(dir, s.Name()))
					}
				}
			}

			for _, cand := range candidates {
				b, err := bundle.Load(cand)
				if err != nil {
					continue // unparseable job.json: not yet claimable
				}

				mtime, err := oldestModTime(cand)
				if err != nil {
					continue
				}

				jobs = append(jobs, ClaimableJob{QueueName: name, Dir: cand, JobID: b.JobID, ModTime: mtime})
			}
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].ModTime.Equal(jobs[j].ModTime) {
			return jobs[i].ModTime.Before(jobs[j].ModTime)
		}
		return jobs[i].JobID < jobs[j].JobID
	})

	return jobs, nil
}

// oldestModTime returns the oldest modification time of any file
// directly under dir, per §4.5's ordering rule.
func oldestModTime(dir string) (time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, err
	}
	var oldest time.Time
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if oldest.IsZero() || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
	}
	if oldest.IsZero() {
		info, err := os.Stat(dir)
		if err != nil {
			return time.Time{}, err
		}
		oldest = info.ModTime()
	}
	return oldest, nil
}

// Claim moves job's bundle directory into the working root under a
// unique name; the move itself is the claim (§4.5). If another
// consumer already claimed it, the source will be gone and Claim
// returns ErrClaimLost.
func (c *Consumer) Claim(job ClaimableJob) (*ClaimedJob, error) {
	workDir := filepath.Join(c.workingDir, job.JobID)

	if err := fsutil.SafeMove(job.Dir, workDir); err != nil {
		if _, statErr := os.Stat(job.Dir); os.IsNotExist(statErr) {
			return nil, ErrClaimLost
		}
		return nil, fmt.Errorf("queue: claim %s: %w", job.JobID, err)
	}

	return &ClaimedJob{Job: job, WorkDir: workDir, SourceID: job.Dir}, nil
}

// Disposition names where Archive files a finished job.
type Disposition struct {
	Success bool
	Reason  string // e.g. "separation", "corrupt" - only used on failure
}

// Archive moves a claimed job's working directory to
// archive/success/ or archive/failed/<reason>/, per §4.5.
func (c *Consumer) Archive(claim *ClaimedJob, disposition Disposition) error {
	var dest string
	if disposition.Success {
		dest = filepath.Join(c.archiveDir, "success", claim.Job.JobID)
	} else {
		reason := disposition.Reason
		if reason == "" {
			reason = "unknown"
		}
		dest = filepath.Join(c.archiveDir, "failed", reason, claim.Job.JobID)
	}

	if err := fsutil.SafeMove(claim.WorkDir, dest); err != nil {
		return fmt.Errorf("queue: archive %s: %w", claim.Job.JobID, err)
	}
	return nil
}

// AlbumSiblings returns the other claimable jobs from the same queue
// whose bundle directory shares sourceDir's parent, so the Processor
// can give a claimed album priority over unrelated candidates until
// it's exhausted (§4.5).
func AlbumSiblings(jobs []ClaimableJob, sourceDir string) []ClaimableJob {
	parent := filepath.Dir(sourceDir)
	var siblings []ClaimableJob
	for _, j := range jobs {
		if filepath.Dir(j.Dir) == parent && j.Dir != sourceDir {
			siblings = append(siblings, j)
		}
	}
	return siblings
}
