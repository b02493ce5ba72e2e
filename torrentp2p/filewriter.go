package torrentp2p

import (
	"os"
	"path/filepath"
)

func create(p string) (*os.File, error) {
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
}

// fileWriter owns the output file. Pieces land at their byte offset, so
// the final file is the concatenation of pieces in index order no matter
// in which order they arrive.
type fileWriter struct {
	file *os.File
}

func createFile(path string) (*fileWriter, error) {
	file, err := create(path)
	if err != nil {
		return nil, err
	}
	return &fileWriter{file: file}, nil
}

func (fw *fileWriter) writeAt(data []byte, offset int64) error {
	_, err := fw.file.WriteAt(data, offset)
	return err
}

func (fw *fileWriter) close() error {
	return fw.file.Close()
}
