package main

import (
	"io/fs"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Collects the files under root whose names satisfy match. Without the
// recursive flag only root's immediate entries are considered.
func collectFiles(root string, recursive bool,
	match func(name string) bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry,
		err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && (path != root) {
				return filepath.SkipDir
			}
			return nil
		}
		if match(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Runs fn for every file through a bounded worker pool. Each file's pipeline
// is independent, so one bad file never aborts the batch; failures are logged
// and counted. Returns the number of failures.
func forEachFile(files []string, fn func(path string) error) int {
	var failed atomic.Int64
	var group errgroup.Group
	group.SetLimit(flagJobs)
	for _, path := range files {
		path := path
		group.Go(func() error {
			if err := fn(path); err != nil {
				log.Errorw("failed", "file", path, "error", err)
				failed.Add(1)
			}
			return nil
		})
	}
	// Workers never return errors; Wait just joins them.
	_ = group.Wait()
	return int(failed.Load())
}
