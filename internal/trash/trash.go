// Package trash moves files to the freedesktop trash so a deleted track
// stays recoverable.
package trash

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// Put moves the file at path into the user trash directory, writing the
// matching .trashinfo record first so the file can be restored.
func Put(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolve %q", path)
	}
	if _, err := os.Stat(abs); err != nil {
		return errors.Wrapf(err, "stat %q", abs)
	}

	filesDir, infoDir, err := trashDirs()
	if err != nil {
		return err
	}

	name, info, err := claim(infoDir, filepath.Base(abs), abs)
	if err != nil {
		return err
	}
	target := filepath.Join(filesDir, name)
	if err := moveFile(abs, target); err != nil {
		_ = os.Remove(info)
		return errors.Wrapf(err, "move %q to trash", abs)
	}
	return nil
}

func trashDirs() (files, info string, err error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", errors.Wrap(err, "locate home directory")
		}
		base = filepath.Join(home, ".local", "share")
	}
	files = filepath.Join(base, "Trash", "files")
	info = filepath.Join(base, "Trash", "info")
	for _, dir := range []string{files, info} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", "", errors.Wrapf(err, "create trash directory %q", dir)
		}
	}
	return files, info, nil
}

// claim reserves a unique name in the trash by exclusively creating the
// .trashinfo record. Returns the chosen name and the info file path.
func claim(infoDir, base, original string) (string, string, error) {
	escaped := (&url.URL{Path: original}).EscapedPath()
	record := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		escaped, time.Now().Format("2006-01-02T15:04:05"))

	for i := 0; i < 1000; i++ {
		name := base
		if i > 0 {
			ext := filepath.Ext(base)
			name = fmt.Sprintf("%s.%d%s", base[:len(base)-len(ext)], i, ext)
		}
		info := filepath.Join(infoDir, name+".trashinfo")
		f, err := os.OpenFile(info, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", errors.Wrapf(err, "create %q", info)
		}
		if _, err := f.WriteString(record); err != nil {
			_ = f.Close()
			_ = os.Remove(info)
			return "", "", errors.Wrapf(err, "write %q", info)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(info)
			return "", "", errors.Wrapf(err, "close %q", info)
		}
		return name, info, nil
	}
	return "", "", errors.Newf("no free trash slot for %q", base)
}

// moveFile renames, falling back to copy-and-delete when the trash lives
// on a different filesystem.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
