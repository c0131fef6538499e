//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyFile tries the most efficient copy method available on Linux,
// falling through on unsupported/cross-device errors.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	preallocate(params.DstFd, params.SrcSize)

	result, err := copyFileRange(params)
	if err == nil {
		return result, nil
	}
	if !isFallbackErr(err) || result.BytesWritten > 0 {
		return result, err
	}

	result, err = copySendfile(params)
	if err == nil {
		return result, nil
	}
	if !isFallbackErr(err) || result.BytesWritten > 0 {
		return result, err
	}

	return copyReadWrite(params)
}

func copyFileRange(params CopyFileParams) (CopyResult, error) {
	srcFd, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer srcFd.Close()

	chunk := int64(params.chunkSize())
	remaining := params.SrcSize
	var roff, woff int64

	var total int64
	for remaining > 0 {
		n := min(remaining, chunk)
		if err := params.wait(int(n)); err != nil {
			return CopyResult{BytesWritten: total, Method: CopyFileRange}, err
		}
		w, err := unix.CopyFileRange(int(srcFd.Fd()), &roff, int(params.DstFd.Fd()), &woff, int(n), 0)
		if err != nil {
			return CopyResult{BytesWritten: total, Method: CopyFileRange}, err
		}
		if w == 0 {
			break
		}
		remaining -= int64(w)
		total += int64(w)
	}

	return CopyResult{BytesWritten: total, Method: CopyFileRange}, nil
}

func copySendfile(params CopyFileParams) (CopyResult, error) {
	srcFd, err := os.Open(params.SrcPath)
	if err != nil {
		return CopyResult{}, err
	}
	defer srcFd.Close()

	chunk := int64(params.chunkSize())
	remaining := params.SrcSize
	var offset int64

	var total int64
	for remaining > 0 {
		n := min(remaining, chunk)
		if err := params.wait(int(n)); err != nil {
			return CopyResult{BytesWritten: total, Method: Sendfile}, err
		}
		w, err := unix.Sendfile(int(params.DstFd.Fd()), int(srcFd.Fd()), &offset, int(n))
		if err != nil {
			return CopyResult{BytesWritten: total, Method: Sendfile}, err
		}
		if w == 0 {
			break
		}
		remaining -= int64(w)
		total += int64(w)
	}

	return CopyResult{BytesWritten: total, Method: Sendfile}, nil
}

// preallocate attempts to pre-allocate disk space. Errors are ignored as
// fallocate is not supported on all filesystems.
func preallocate(fd *os.File, size int64) {
	if size <= 0 {
		return
	}
	//nolint:errcheck // fallocate is advisory
	unix.Fallocate(int(fd.Fd()), 0, 0, size)
}
