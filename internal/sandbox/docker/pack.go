package docker

import (
	"archive/tar"
	"os"
	"path/filepath"
)

type tarEntry struct {
	header  *tar.Header
	content []byte
}

// readDirRecursive walks dir and returns one tarEntry per file and
// directory, with names relative to dir and "." as the root so the
// resulting archive matches tarfile.open(...).add(dir, arcname=".").
func readDirRecursive(dir string) ([]tarEntry, error) {
	var entries []tarEntry

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if name == "." {
			name = "."
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = name

		if info.IsDir() {
			entries = append(entries, tarEntry{header: header})
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		header.Size = int64(len(content))
		entries = append(entries, tarEntry{header: header, content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
