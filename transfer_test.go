package hdfsftpd

import (
	"os"
	"testing"

	"github.com/hdfsftpd/hdfsftpd/remotefs"
)

func TestClassIndicator(t *testing.T) {
	cases := []struct {
		name string
		fi   remotefs.FileInfo
		want string
	}{
		{"directory", remotefs.FileInfo{IsDir: true, Mode: 0o755}, "/"},
		{"executable file", remotefs.FileInfo{Mode: 0o755}, "*"},
		{"executable by group only", remotefs.FileInfo{Mode: 0o640 | 0o010}, "*"},
		{"plain file", remotefs.FileInfo{Mode: 0o644}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classIndicator(tc.fi); got != tc.want {
				t.Errorf("classIndicator(%v) = %q, want %q", tc.fi.Mode, got, tc.want)
			}
		})
	}
}

func TestClassIndicatorDirectoryWinsOverExecuteBit(t *testing.T) {
	fi := remotefs.FileInfo{IsDir: true, Mode: os.FileMode(0o755)}
	if got := classIndicator(fi); got != "/" {
		t.Errorf("expected a directory to report %q regardless of its mode, got %q", "/", got)
	}
}
