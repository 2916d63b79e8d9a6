package remotefs

import (
	"context"
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// LocalFS implements FS over an afero.Fs, for local demos and for the
// engine's own tests (grounded on the teacher's driver_test.go, which backs
// its test ClientDriver with afero.NewBasePathFs over a temp directory).
type LocalFS struct {
	fs afero.Fs

	mu       sync.Mutex
	uidNames map[uint32]string
	gidNames map[uint32]string
}

// NewLocalFS wraps fs (typically an afero.NewBasePathFs rooted at some
// directory) as a RemoteFS.
func NewLocalFS(fs afero.Fs) *LocalFS {
	return &LocalFS{
		fs:       fs,
		uidNames: make(map[uint32]string),
		gidNames: make(map[uint32]string),
	}
}

func (l *LocalFS) Open(_ context.Context, path string) (ReadCloser, error) {
	return l.fs.Open(path)
}

func (l *LocalFS) Create(_ context.Context, path string) (WriteCloser, error) {
	return l.fs.Create(path)
}

func (l *LocalFS) Append(_ context.Context, path string) (WriteCloser, error) {
	f, err := l.fs.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (l *LocalFS) Stat(_ context.Context, path string) (FileInfo, error) {
	fi, err := l.fs.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}

	return l.toFileInfo(fi), nil
}

func (l *LocalFS) List(_ context.Context, path string) ([]FileInfo, error) {
	entries, err := afero.ReadDir(l.fs, path)
	if err != nil {
		return nil, err
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, l.toFileInfo(e))
	}

	return out, nil
}

func (l *LocalFS) Delete(_ context.Context, path string) error {
	return l.fs.Remove(path)
}

func (l *LocalFS) Mkdir(_ context.Context, path string) error {
	return l.fs.MkdirAll(path, 0o755)
}

func (l *LocalFS) Rmdir(_ context.Context, path string) error {
	return l.fs.Remove(path)
}

func (l *LocalFS) Rename(_ context.Context, oldPath, newPath string) error {
	return l.fs.Rename(oldPath, newPath)
}

func (l *LocalFS) Exists(_ context.Context, path string) (bool, error) {
	return afero.Exists(l.fs, path)
}

func (l *LocalFS) SetModTime(_ context.Context, path string, t time.Time) error {
	return l.fs.Chtimes(path, t, t)
}

func (l *LocalFS) UsernameForUID(uid uint32) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if name, ok := l.uidNames[uid]; ok {
		return name
	}

	name := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(name); err == nil {
		name = u.Username
	}

	l.uidNames[uid] = name

	return name
}

func (l *LocalFS) GroupnameForGID(gid uint32) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if name, ok := l.gidNames[gid]; ok {
		return name
	}

	name := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(name); err == nil {
		name = g.Name
	}

	l.gidNames[gid] = name

	return name
}

func (l *LocalFS) Close() error { return nil }

func (l *LocalFS) toFileInfo(fi os.FileInfo) FileInfo {
	out := FileInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}

	if uid, gid, ok := sysOwnership(fi); ok {
		out.Owner = l.UsernameForUID(uid)
		out.Group = l.GroupnameForGID(gid)
	}

	return out
}
