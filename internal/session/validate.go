package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name can be used as a session directory.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match %s", name, nameRegexp)
	}
	return nil
}

// Info describes a session directory.
type Info struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"running"`
}

// List returns the sessions under BaseDir in name order. A session is
// running when its socket exists. Directories with invalid names are
// skipped.
func List() ([]Info, error) {
	entries, err := os.ReadDir(filepath.Join(BaseDir(), "sessions"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Info
	for _, e := range entries {
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		_, err := os.Stat(SocketPath(e.Name()))
		out = append(out, Info{Name: e.Name(), Path: Dir(e.Name()), Running: err == nil})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
