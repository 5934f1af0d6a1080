package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"colonysim/internal/sim/colony"
)

// ListFiles returns the prefix-*.jsonl.zst files of dir in tick order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadFile decodes every tick entry of one journal file.
func ReadFile(path string, fn func(colony.TickEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var entry colony.TickEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ReadDir walks the events files of a run directory's events/ folder.
func ReadDir(eventsDir string, fn func(colony.TickEntry) error) error {
	files, err := ListFiles(eventsDir, "events")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no events files found in %s", eventsDir)
	}
	for _, path := range files {
		if err := ReadFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}
