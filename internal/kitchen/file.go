package kitchen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/pkg/sftp"
)

// File inspects a path on the remote host. Metadata and content are read over
// SFTP; owner and group names come from stat(1) since SFTP only carries ids.
type File struct {
	host *Host
	Path string
}

func (h *Host) File(path string) *File {
	return &File{host: h, Path: path}
}

func (h *Host) withSFTP(ctx context.Context, fn func(*sftp.Client) error) error {
	client, err := h.connect(ctx)
	if err != nil {
		return err
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("sftp on %s: %w", h.cfg.Addr(), err)
	}
	defer sc.Close()
	return fn(sc)
}

func (f *File) stat(ctx context.Context) (fs.FileInfo, error) {
	var fi fs.FileInfo
	err := f.host.withSFTP(ctx, func(sc *sftp.Client) error {
		var err error
		fi, err = sc.Stat(f.Path)
		return err
	})
	return fi, err
}

func (f *File) Exists(ctx context.Context) (bool, error) {
	_, err := f.stat(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", f.Path, err)
	}
	return true, nil
}

func (f *File) IsDirectory(ctx context.Context) (bool, error) {
	fi, err := f.stat(ctx)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", f.Path, err)
	}
	return fi.IsDir(), nil
}

func (f *File) Mode(ctx context.Context) (fs.FileMode, error) {
	fi, err := f.stat(ctx)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", f.Path, err)
	}
	return fi.Mode().Perm(), nil
}

func (f *File) Content(ctx context.Context) ([]byte, error) {
	var b []byte
	err := f.host.withSFTP(ctx, func(sc *sftp.Client) error {
		r, err := sc.Open(f.Path)
		if err != nil {
			return err
		}
		defer r.Close()
		b, err = io.ReadAll(r)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	return b, nil
}

// Owner returns the user and group names owning the path.
func (f *File) Owner(ctx context.Context) (user string, group string, err error) {
	res, err := f.host.Runf(ctx, "stat -c '%%U %%G' %s", f.Path)
	if err != nil {
		return "", "", err
	}
	if res.Failed() {
		return "", "", fmt.Errorf("stat %s: exit %d: %s", f.Path, res.ExitStatus, strings.TrimSpace(res.Stderr))
	}
	user, group, ok := strings.Cut(res.Output(), " ")
	if !ok {
		return "", "", fmt.Errorf("stat %s: unexpected output %q", f.Path, res.Stdout)
	}
	return user, group, nil
}
