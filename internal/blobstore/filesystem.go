// Package blobstore implements the content-addressed storage layer:
// FilesystemBlobStore (default, local two-level fan-out directory),
// S3BlobStore (optional, for storage.blob_root = "s3://..."), and
// MemoryBlobStore (for tests).
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"spmirror/internal/core"
)

// FilesystemBlobStore stores blobs under root using the layout
// {root}/{sha256[0:2]}/{sha256[2:4]}/{sha256}.
type FilesystemBlobStore struct {
	root string
}

// NewFilesystemBlobStore creates a blob store rooted at root, creating
// the directory if necessary.
func NewFilesystemBlobStore(root string) (*FilesystemBlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &FilesystemBlobStore{root: root}, nil
}

func (s *FilesystemBlobStore) pathFor(sha256hex string) string {
	return filepath.Join(s.root, sha256hex[0:2], sha256hex[2:4], sha256hex)
}

// Put streams r to a temp file in the same filesystem as the final
// destination, hashing incrementally, then atomically renames it into
// place. If the destination already exists with a matching size, the
// temp file is discarded and the put is a no-op (idempotent).
func (s *FilesystemBlobStore) Put(r io.Reader, mimeHint string) (string, int64, string, error) {
	tmpDir := filepath.Join(s.root, ".tmp")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return "", 0, "", core.StorageError("Put", fmt.Errorf("creating temp dir: %w", err))
	}

	tmp, err := os.CreateTemp(tmpDir, "put-*")
	if err != nil {
		return "", 0, "", core.StorageError("Put", fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	h := sha256.New()
	mimeBuf := make([]byte, 0, 3072)
	tee := io.TeeReader(r, h)

	size, err := copyAndSniff(tmp, tee, &mimeBuf)
	if err != nil {
		tmp.Close()
		return "", 0, "", core.StorageError("Put", fmt.Errorf("writing content: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return "", 0, "", core.StorageError("Put", fmt.Errorf("closing temp file: %w", err))
	}

	checksum := hex.EncodeToString(h.Sum(nil))
	mime := mimeHint
	if mime == "" {
		mime = mimetype.Detect(mimeBuf).String()
	}

	dest := s.pathFor(checksum)
	if info, err := os.Stat(dest); err == nil {
		if info.Size() == size {
			success = true
			os.Remove(tmpPath)
			return checksum, size, mime, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", 0, "", core.StorageError("Put", fmt.Errorf("creating blob directory: %w", err))
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", 0, "", core.StorageError("Put", fmt.Errorf("renaming into place: %w", err))
	}

	success = true
	return checksum, size, mime, nil
}

// copyAndSniff copies src to dst while retaining up to the first 3072
// bytes in *sniff for MIME detection, matching the window
// mimetype.Detect expects.
func copyAndSniff(dst io.Writer, src io.Reader, sniff *[]byte) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if len(*sniff) < 3072 {
				need := 3072 - len(*sniff)
				if need > n {
					need = n
				}
				*sniff = append(*sniff, buf[:need]...)
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Open returns a reader for the blob with the given checksum.
func (s *FilesystemBlobStore) Open(sha256hex string) (io.ReadCloser, error) {
	f, err := os.Open(s.pathFor(sha256hex))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NotFoundError("Open", fmt.Errorf("blob not found: %s", sha256hex))
		}
		return nil, core.StorageError("Open", err)
	}
	return f, nil
}

// Delete removes the blob file. Empty parent directories are pruned
// opportunistically; failure to prune is not an error.
func (s *FilesystemBlobStore) Delete(sha256hex string) error {
	path := s.pathFor(sha256hex)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return core.StorageError("Delete", err)
	}

	dir := filepath.Dir(path)
	for i := 0; i < 2; i++ {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// Verify re-hashes the blob on disk and compares it against sha256 and
// expectedSize.
func (s *FilesystemBlobStore) Verify(sha256hex string, expectedSize int64) (core.VerifyResult, error) {
	f, err := os.Open(s.pathFor(sha256hex))
	if err != nil {
		if os.IsNotExist(err) {
			return core.VerifyMissing, nil
		}
		return "", core.StorageError("Verify", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", core.StorageError("Verify", err)
	}

	if size != expectedSize || hex.EncodeToString(h.Sum(nil)) != sha256hex {
		return core.VerifyCorrupt, nil
	}
	return core.VerifyOK, nil
}

var _ core.BlobStore = (*FilesystemBlobStore)(nil)
