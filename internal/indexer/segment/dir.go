package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Info describes one segment file in a data directory.
type Info struct {
	Generation uint64
	Path       string
}

// List returns the segment files in dir ordered by ascending generation.
// Temporary files from interrupted writes are ignored.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing segments: %w", err)
	}
	var infos []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseFileName(e.Name())
		if !ok {
			continue
		}
		infos = append(infos, Info{Generation: id, Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Generation < infos[j].Generation })
	return infos, nil
}

func parseFileName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, "gen_") || !strings.HasSuffix(name, Extension) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, "gen_"), Extension), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Latest returns the newest segment in dir, or ErrNoGenerationYet.
func Latest(dir string) (Info, error) {
	infos, err := List(dir)
	if err != nil {
		return Info{}, err
	}
	if len(infos) == 0 {
		return Info{}, fmt.Errorf("%w in %s", apperrors.ErrNoGenerationYet, dir)
	}
	return infos[len(infos)-1], nil
}

// Prune removes all but the newest keep segments and any leftover
// temporary files. keep <= 0 disables pruning.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	infos, err := List(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	if len(infos) > keep {
		for _, info := range infos[:len(infos)-keep] {
			if err := os.Remove(info.Path); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("removing segment: %w", err)
			}
			removed = append(removed, info.Path)
		}
	}
	tmps, _ := filepath.Glob(filepath.Join(dir, "gen_*"+Extension+".tmp"))
	for _, tmp := range tmps {
		if err := os.Remove(tmp); err == nil {
			removed = append(removed, tmp)
		}
	}
	return removed, nil
}
