package util

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// WalkFunc is called for every file found by WalkDirTree
type WalkFunc func(path string, err error) error

// SkipFunc decides whether a path (and, for directories, its subtree) is skipped
type SkipFunc func(path string, isDir bool) bool

type walkItem struct {
	path string
}

// WalkDirTree walks root and hands every file to walkFn on numThreads workers.
// walkFn errors are logged and do not stop the walk.
func WalkDirTree(root string, walkFn WalkFunc, skipPath SkipFunc, logger *zap.Logger, numThreads int) error {
	if numThreads < 1 {
		numThreads = 1
	}

	workQueue := make(chan walkItem, numThreads)
	var wg sync.WaitGroup

	for i := 0; i < numThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workQueue {
				if err := walkFn(item.path, nil); err != nil {
					logger.Error("WalkDirTree - Failed to process file", zap.String("path", item.path), zap.Error(err))
				}
			}
		}()
	}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if skipPath != nil && skipPath(path, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		workQueue <- walkItem{path: path}
		return nil
	})
	close(workQueue)

	wg.Wait()

	return err
}

// ShouldSkipDirectory reports directories that never hold corpus sources
func ShouldSkipDirectory(dirName string) bool {
	switch dirName {
	case ".git", "node_modules", ".vscode", ".idea", "vendor", "target",
		"build", "dist", "__pycache__", ".pytest_cache", "coverage",
		"site-packages", ".next", ".nuxt", "venv", "env":
		return true
	}
	return false
}
