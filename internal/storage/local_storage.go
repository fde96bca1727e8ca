package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps objects on the local disk, fanning refs out into a
// directory per character to keep directories small.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (ls *LocalStorage) getPathFromRef(ref string) string {
	pathParts := strings.Split(ref, "")
	return filepath.Join(ls.basePath, filepath.Join(pathParts...))
}

func (ls *LocalStorage) Save(ref string, data io.Reader) error {
	filePath := ls.getPathFromRef(ref)
	dir := filepath.Dir(filePath)

	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, data)
	return err
}

func (ls *LocalStorage) Get(ref string) (io.ReadCloser, error) {
	filePath := ls.getPathFromRef(ref)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s not found: %w", ref, err)
		}
		return nil, err
	}

	return file, nil
}

func (ls *LocalStorage) Delete(ref string) error {
	filePath := ls.getPathFromRef(ref)

	err := os.Remove(filePath)
	if os.IsNotExist(err) {
		return nil
	}

	return err
}
