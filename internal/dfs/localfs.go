package dfs

// localfs.go implements FS directly against the local filesystem, rooted at
// a base directory — the single-node stand-in for the real DFS
// implementation a production deployment would plug in instead.

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// LocalFS implements FS by rooting every name under Root.
type LocalFS struct {
	Root string
}

// NewLocalFS returns an FS rooted at root, creating the directory if absent.
func NewLocalFS(root string) (*LocalFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalFS{Root: root}, nil
}

func (l *LocalFS) path(name string) string { return filepath.Join(l.Root, filepath.Clean("/"+name)) }

func (l *LocalFS) Create(_ context.Context, name string) (io.WriteCloser, error) {
	p := l.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return os.Create(p)
}

func (l *LocalFS) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	return f, nil
}

func (l *LocalFS) Remove(_ context.Context, name string) error {
	err := os.Remove(l.path(name))
	if os.IsNotExist(err) {
		return ErrNotExist
	}
	return err
}

func (l *LocalFS) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(l.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *LocalFS) Length(_ context.Context, name string) (int64, error) {
	fi, err := os.Stat(l.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotExist
		}
		return 0, err
	}
	return fi.Size(), nil
}
