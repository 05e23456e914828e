package rules

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/veildb/veil/rls"
)

// Watch loads the policy file at path and calls apply with the compiled
// registry, then blocks, reloading and re-applying whenever the file
// changes. Reload failures are reported through onError (which may be nil)
// and leave the last good registry in effect. Watch returns when ctx is
// done, or earlier if the initial load or the watcher itself fails.
//
// Registries handed to apply are immutable snapshots; per-request proxies
// should be constructed from the most recently applied one.
func Watch(ctx context.Context, path string, apply func(rls.Registry), onError func(error)) error {
	load := func() error {
		cfg, err := LoadConfig(path)
		if err != nil {
			return err
		}
		reg, err := cfg.Registry()
		if err != nil {
			return err
		}
		apply(reg)
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and config rollouts
	// typically replace the file, which drops a direct file watch. The watch
	// is registered before the initial load so a rewrite landing between the
	// two arrives as an event instead of going unseen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	if err := load(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := load(); err != nil && onError != nil {
				onError(err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
