package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultRetries is how many suffixed names UniqueFilename tries before giving up.
const DefaultRetries = 9999999

var ErrStagingNameExhausted = errors.New("cannot get unique staging name")

// UniqueFilename returns preferred if nothing exists there, otherwise the first free
// "<name>_<i><ext>" sibling for i in [0, retries).
func UniqueFilename(preferred string, retries int) (string, error) {
	if !exists(preferred) {
		return preferred, nil
	}

	folder := filepath.Dir(preferred)
	name, extension := splitExt(filepath.Base(preferred))

	for i := range retries {
		candidate := filepath.Join(folder, name+"_"+strconv.Itoa(i)+extension)
		if !exists(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s after %d attempts", ErrStagingNameExhausted, preferred, retries)
}

// splitExt splits the last extension off base. A leading dot does not start an extension.
func splitExt(base string) (string, string) {
	extension := filepath.Ext(base)
	name := strings.TrimSuffix(base, extension)

	if strings.Trim(name, ".") == "" {
		return base, ""
	}

	return name, extension
}

func exists(path string) bool {
	_, err := os.Lstat(path)

	return err == nil
}
