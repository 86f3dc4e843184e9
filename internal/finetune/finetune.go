// Package finetune exports tasks with known answers as chat fine-tuning
// records in JSON Lines form.
package finetune

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/metalagman/arcft/internal/dataset"
	"github.com/metalagman/arcft/internal/prompt"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Record is one training example.
type Record struct {
	Messages []Message `json:"messages"`
}

// Build returns one record per test input with a known answer, in task
// order. A positive limit caps the number of records.
func Build(tasks []dataset.Task, mode prompt.Mode, limit int) ([]Record, error) {
	var records []Record
	for _, task := range tasks {
		for i := range task.TestInputs {
			answer, ok := task.Answer(i)
			if !ok {
				continue
			}
			req, err := prompt.Build(task, i, mode)
			if err != nil {
				return nil, err
			}
			records = append(records, Record{Messages: []Message{
				{Role: "system", Content: req.System},
				{Role: "user", Content: req.User},
				{Role: "assistant", Content: prompt.FormatGrid(answer)},
			}})
			if limit > 0 && len(records) >= limit {
				return records, nil
			}
		}
	}
	return records, nil
}

// Write encodes records as JSON Lines.
func Write(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

// WriteFile writes records to path, creating parent directories.
func WriteFile(path string, records []Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := Write(f, records); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
