package remotefs

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/colinmarc/hdfs/v2"
)

// HDFSConfig binds to a namenode (spec §6's HDFS.* settings). A Replication
// of 0 selects 3 replicas and a BlockSize of 0 selects 128 MiB blocks; these
// fixed values are used instead of the namenode's own defaults. BufferSize
// is not used.
type HDFSConfig struct {
	NameNodeHost string
	NameNodePort int
	BufferSize   int
	Replication  int16
	BlockSize    int64
}

// HDFSFS implements FS against a real HDFS cluster via colinmarc/hdfs/v2.
type HDFSFS struct {
	client *hdfs.Client
	cfg    HDFSConfig
}

// NewHDFSFS dials the namenode named by cfg and returns a ready FS.
func NewHDFSFS(cfg HDFSConfig) (*HDFSFS, error) {
	addr := cfg.NameNodeHost + ":" + strconv.Itoa(cfg.NameNodePort)

	client, err := hdfs.New(addr)
	if err != nil {
		return nil, err
	}

	return &HDFSFS{client: client, cfg: cfg}, nil
}

func (h *HDFSFS) Open(_ context.Context, path string) (ReadCloser, error) {
	r, err := h.client.Open(path)
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (h *HDFSFS) Create(_ context.Context, path string) (WriteCloser, error) {
	replication := h.cfg.Replication
	if replication <= 0 {
		replication = 3
	}

	blockSize := h.cfg.BlockSize
	if blockSize <= 0 {
		blockSize = 128 * 1024 * 1024
	}

	return h.client.CreateFile(path, replication, blockSize, 0o644)
}

func (h *HDFSFS) Append(_ context.Context, path string) (WriteCloser, error) {
	return h.client.Append(path)
}

func (h *HDFSFS) Stat(_ context.Context, path string) (FileInfo, error) {
	fi, err := h.client.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}

	return toFileInfo(fi), nil
}

func (h *HDFSFS) List(_ context.Context, path string) ([]FileInfo, error) {
	entries, err := h.client.ReadDir(path)
	if err != nil {
		return nil, err
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, toFileInfo(e))
	}

	return out, nil
}

func (h *HDFSFS) Delete(_ context.Context, path string) error {
	return h.client.Remove(path)
}

func (h *HDFSFS) Mkdir(_ context.Context, path string) error {
	return h.client.MkdirAll(path, 0o755)
}

func (h *HDFSFS) Rmdir(_ context.Context, path string) error {
	return h.client.Remove(path)
}

func (h *HDFSFS) Rename(_ context.Context, oldPath, newPath string) error {
	return h.client.Rename(oldPath, newPath)
}

func (h *HDFSFS) Exists(_ context.Context, path string) (bool, error) {
	_, err := h.client.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

func (h *HDFSFS) SetModTime(_ context.Context, path string, t time.Time) error {
	return h.client.Chtimes(path, t, t)
}

func (h *HDFSFS) UsernameForUID(uid uint32) string {
	return strconv.FormatUint(uint64(uid), 10)
}

func (h *HDFSFS) GroupnameForGID(gid uint32) string {
	return strconv.FormatUint(uint64(gid), 10)
}

func (h *HDFSFS) Close() error {
	return h.client.Close()
}

// ownerInfo is satisfied by *hdfs.FileInfo, which carries HDFS-specific
// ownership beyond the stdlib os.FileInfo contract.
type ownerInfo interface {
	Owner() string
	OwnerGroup() string
}

func toFileInfo(fi os.FileInfo) FileInfo {
	out := FileInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}

	if oi, ok := fi.(ownerInfo); ok {
		out.Owner = oi.Owner()
		out.Group = oi.OwnerGroup()
	}

	return out
}
