package corpus

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"ngram-go/internal/util"

	"go.uber.org/zap"
)

// Record is one raw code unit before tokenization
type Record struct {
	ID         string
	Code       string
	TokenCount int // -1 when the source carries no count
}

// maxLineBytes bounds a single JSONL record
const maxLineBytes = 64 * 1024 * 1024

// ReadJSONL reads one JSON object per line and takes codeField as the code.
// countField, when non-empty, names a numeric token count.
func ReadJSONL(r io.Reader, codeField, countField string) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxLineBytes)

	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", line, err)
		}

		code, ok := obj[codeField].(string)
		if !ok {
			return nil, fmt.Errorf("line %d: field %q missing or not a string", line, codeField)
		}

		record := Record{ID: strconv.Itoa(line), Code: code, TokenCount: -1}
		if countField != "" {
			if count, ok := obj[countField].(float64); ok {
				record.TokenCount = int(count)
			}
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL: %w", err)
	}
	return records, nil
}

// ReadCSV reads a CSV file with a header row
func ReadCSV(r io.Reader, codeField, countField string) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	codeIdx, countIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case codeField:
			codeIdx = i
		case countField:
			countIdx = i
		}
	}
	if codeIdx < 0 {
		return nil, fmt.Errorf("CSV column %q not found", codeField)
	}

	var records []Record
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if codeIdx >= len(fields) {
			continue
		}

		record := Record{ID: strconv.Itoa(row), Code: fields[codeIdx], TokenCount: -1}
		if countIdx >= 0 && countIdx < len(fields) {
			if count, err := strconv.ParseFloat(strings.TrimSpace(fields[countIdx]), 64); err == nil {
				record.TokenCount = int(count)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

// ReadDir collects every file under root whose extension passes accept.
// With gitHead set, files are read as committed at HEAD unless modified since.
// Records are keyed by path relative to root and sorted so downstream splits
// are reproducible.
func ReadDir(ctx context.Context, root string, accept func(ext string) bool, gitHead bool, numThreads int, logger *zap.Logger) ([]Record, error) {
	readFile := os.ReadFile
	if gitHead {
		snapshot, err := util.OpenGitSnapshot(root)
		if err != nil {
			return nil, err
		}
		if snapshot.IsGitRepo {
			logger.Info("Reading corpus from git HEAD",
				zap.String("root", root),
				zap.String("commit", snapshot.HeadCommitSHA))
		} else {
			logger.Warn("Corpus root is not a git repository, reading working tree", zap.String("root", root))
		}
		readFile = snapshot.ReadFile
	}

	var mu sync.Mutex
	var records []Record

	err := util.WalkDirTree(root,
		func(path string, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !accept(strings.ToLower(filepath.Ext(path))) {
				return nil
			}

			source, err := readFile(path)
			if err != nil {
				logger.Warn("Failed to read file", zap.String("path", path), zap.Error(err))
				return nil
			}

			mu.Lock()
			records = append(records, Record{ID: util.ToRelativePath(root, path), Code: string(source), TokenCount: -1})
			mu.Unlock()
			return nil
		},
		func(path string, isDir bool) bool {
			return isDir && path != root && util.ShouldSkipDirectory(filepath.Base(path))
		},
		logger,
		numThreads,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}
