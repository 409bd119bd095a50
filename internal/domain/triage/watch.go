package triage

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchRuleSet reloads the rule set at path whenever the file is written or
// replaced and hands the new instance to onChange. A reload that fails to
// parse is logged and the previous rule set stays active. It runs until ctx
// is cancelled.
//
// The parent directory is watched rather than the file: a rename-save swaps
// the inode, and a watch on the file itself would die with the old one.
func WatchRuleSet(ctx context.Context, path string, logger zerolog.Logger, onChange func(*RuleSet)) error {
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Info().Str("path", path).Msg("watching rule set")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			// A rename over path arrives as Create for path.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			rs, err := LoadRuleSet(path)
			if err != nil {
				logger.Error().Err(err).Str("path", path).Msg("rule set reload failed, keeping previous")
				continue
			}
			logger.Info().Str("path", path).Str("rule_set", rs.Label()).Msg("rule set reloaded")
			onChange(rs)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("rule set watcher error")
		}
	}
}
