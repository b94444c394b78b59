package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirStore keeps received files flat under RootDir. Names coming from the
// peer are reduced to their base name so a transfer can never escape the
// root directory.
type DirStore struct {
	RootDir string
}

func NewDirStore(rootDir string) *DirStore {
	if rootDir == "" {
		rootDir = "."
	}
	return &DirStore{
		RootDir: rootDir,
	}
}

// FullPath returns where a received file called name is stored.
func (s *DirStore) FullPath(name string) string {
	return filepath.Join(s.RootDir, filepath.Base(name))
}

// WriteStream reads from r and writes it to RootDir/name, replacing any
// existing file.
func (s *DirStore) WriteStream(name string, r io.Reader) (int64, error) {
	if name == "" || filepath.Base(name) == "." || filepath.Base(name) == string(filepath.Separator) {
		return 0, fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(s.RootDir, 0755); err != nil {
		return 0, fmt.Errorf("create store dir: %w", err)
	}
	file, err := os.Create(s.FullPath(name))
	if err != nil {
		return 0, err
	}
	defer file.Close()
	n, err := io.Copy(file, r)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}

// ReadStream opens a local file to send. The path is used as given, it is
// not resolved against RootDir.
func (s *DirStore) ReadStream(path string) (int64, io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, nil, err
	}
	if fi.IsDir() {
		file.Close()
		return 0, nil, fmt.Errorf("%s is a directory", path)
	}
	return fi.Size(), file, nil
}

// Has reports whether a received file called name is already stored.
func (s *DirStore) Has(name string) bool {
	_, err := os.Stat(s.FullPath(name))
	return err == nil
}
