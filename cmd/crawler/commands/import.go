package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"prop-crawler/internal/storage"
)

const importChunk = 100

func init() {
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import <cleaned_properties.json>",
	Short: "Upserts a JSON array of cleaned properties into the properties collection.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		records, skipped, err := readProperties(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		imported, err := importProperties(ctx, a.properties(), records)
		renderCounts(cmd.OutOrStdout(), "Import", [][2]any{
			{"Imported", imported},
			{"Skipped", skipped},
		})
		return err
	},
}

type documentSaver interface {
	SaveDocuments(ctx context.Context, batch []storage.Document) error
}

// readProperties splits a JSON array of properties into documents keyed by
// their id, keeping each element's JSON exactly as written. Entries without
// an id are dropped. A repeated id keeps the position of its first
// occurrence and the contents of its last.
func readProperties(r io.Reader) ([]storage.Document, int, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, 0, err
	}

	index := make(map[string]int, len(raw))
	out := make([]storage.Document, 0, len(raw))
	skipped := 0
	for _, body := range raw {
		var head struct {
			ID json.RawMessage `json:"id"`
		}
		// Non-object entries have no id either.
		_ = json.Unmarshal(body, &head)
		id := propertyID(head.ID)
		if id == "" {
			skipped++
			continue
		}
		doc := storage.Document{ID: id, Body: body}
		if at, seen := index[id]; seen {
			out[at] = doc
			skipped++
			continue
		}
		index[id] = len(out)
		out = append(out, doc)
	}
	return out, skipped, nil
}

// propertyID renders a string or numeric id as its key. Missing, null, empty
// and zero ids yield "".
func propertyID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n.String() != "0" {
		return n.String()
	}
	return ""
}

func importProperties(ctx context.Context, saver documentSaver, docs []storage.Document) (int, error) {
	imported := 0
	for start := 0; start < len(docs); start += importChunk {
		end := min(start+importChunk, len(docs))
		if err := saver.SaveDocuments(ctx, docs[start:end]); err != nil {
			return imported, fmt.Errorf("save properties %d-%d: %w", start, end, err)
		}
		imported = end
		slog.InfoContext(ctx, "imported properties", "done", imported, "total", len(docs))
	}
	return imported, nil
}
