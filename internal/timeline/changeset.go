package timeline

import (
	"context"
	"fmt"
	"iter"

	"backup-timeline/internal/backup"
	"backup-timeline/internal/inclusion"
	"backup-timeline/internal/mediatypes"
)

// ChangeSet is the eligible changed files of one backup.
type ChangeSet struct {
	Backup backup.Backup
	Files  []string
}

// Resolver computes change sets: changed files, narrowed by the backup's
// include markers, narrowed by media type.
type Resolver struct {
	// Eligible decides whether a file belongs on the timeline.
	// Nil means mediatypes.IsTimelineEligible.
	Eligible func(path string) bool
}

// EligibleFiles returns the files of b that belong on the timeline.
func (r Resolver) EligibleFiles(ctx context.Context, b backup.Backup) ([]string, error) {
	changed, err := b.ChangedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing changed files: %w", err)
	}

	included, err := inclusion.Apply(b.Root(), changed)
	if err != nil {
		return nil, fmt.Errorf("applying include rules: %w", err)
	}

	eligible := r.Eligible
	if eligible == nil {
		eligible = mediatypes.IsTimelineEligible
	}

	var files []string
	for _, path := range included {
		if eligible(path) {
			files = append(files, path)
		}
	}
	return files, nil
}

// ChangeSets yields the change set of each backup in order. A backup whose
// files cannot be resolved yields its error; iteration continues if the
// consumer keeps ranging.
func (r Resolver) ChangeSets(ctx context.Context, backups []backup.Backup) iter.Seq2[ChangeSet, error] {
	return func(yield func(ChangeSet, error) bool) {
		for _, b := range backups {
			if err := ctx.Err(); err != nil {
				yield(ChangeSet{Backup: b}, err)
				return
			}
			files, err := r.EligibleFiles(ctx, b)
			if !yield(ChangeSet{Backup: b, Files: files}, err) {
				return
			}
		}
	}
}
