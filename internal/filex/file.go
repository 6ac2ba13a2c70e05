// Package filex holds small file helpers used by the vault: full-content
// copies and the ".bak" backup convention.
package filex

import (
	"fmt"
	"io"
	"os"
)

// Copy copies src to dst in full, creating or truncating dst. Permissions
// of an existing dst are left alone; a new dst is created 0600 since it
// may hold secret material.
func Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// Backup copies path to "<path>.bak" next to the original, overwriting any
// previous backup.
func Backup(path string) error {
	return Copy(path, path+".bak")
}
