// Package dataset reads evaluation tasks from line-delimited JSON.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ahrav/finjudge/internal/domain"
)

// ErrDatasetUnreadable is fatal: no task of the run is evaluated.
var ErrDatasetUnreadable = errors.New("dataset unreadable")

const maxLineBytes = 4 << 20

// Load reads every task from the JSONL file at path.
func Load(path string) ([]domain.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatasetUnreadable, err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes one task per non-blank line. Any undecodable line, or a task
// without an id, makes the whole dataset unreadable. Tasks keep file order.
func Read(r io.Reader) ([]domain.Task, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		tasks []domain.Task
		seen  = make(map[string]int)
		line  int
	)
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var t domain.Task
		if err := json.Unmarshal([]byte(text), &t); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrDatasetUnreadable, line, err)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrDatasetUnreadable, line, err)
		}
		if prev, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: line %d: task id %q already used on line %d",
				ErrDatasetUnreadable, line, t.ID, prev)
		}
		seen[t.ID] = line
		if t.Rubric == nil {
			t.Rubric = []domain.RubricItem{}
		}
		tasks = append(tasks, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatasetUnreadable, err)
	}
	return tasks, nil
}
