// internal/repository/json_store.go
package repository

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	apperrors "ffb-control-service/internal/errors"
)

// ErrNotFound is returned when a stored document does not exist
var ErrNotFound = apperrors.New(apperrors.KindNotFound)

// writeJSON writes v as indented JSON. The file is replaced through a rename
// so readers never observe a partial document.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.Wrapf(err, apperrors.KindStorage, "encode %s", filepath.Base(path))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.Wrapf(err, apperrors.KindStorage, "create directory for %s", filepath.Base(path))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return apperrors.Wrapf(err, apperrors.KindStorage, "write %s", filepath.Base(path))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.Wrapf(err, apperrors.KindStorage, "write %s", filepath.Base(path))
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrapf(err, apperrors.KindStorage, "write %s", filepath.Base(path))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.Wrapf(err, apperrors.KindStorage, "replace %s", filepath.Base(path))
	}
	return nil
}

// readJSON decodes path into v. A missing file yields ErrNotFound.
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return apperrors.Wrapf(err, apperrors.KindStorage, "read %s", filepath.Base(path))
	}

	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrapf(err, apperrors.KindStorage, "decode %s", filepath.Base(path))
	}
	return nil
}

// safeFileName replaces characters that are not valid in file names on any
// supported platform.
func safeFileName(name string) string {
	const invalid = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if r < 32 || strings.ContainsRune(invalid, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.New(apperrors.KindInvalidArgument, "name is required")
	}
	return nil
}
