package platform

import (
	"context"
	"os"

	"golang.org/x/time/rate"
)

// CopyMethod identifies which syscall/strategy was used for a copy.
type CopyMethod int

const (
	ReadWrite     CopyMethod = iota
	CopyFileRange            // Linux copy_file_range(2)
	Sendfile                 // Linux sendfile(2)
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	default:
		return "unknown"
	}
}

// CopyResult reports the outcome of a copy operation.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CopyFileParams describes a whole-file copy into an already open
// destination. Ctx and Limiter are optional.
type CopyFileParams struct {
	Ctx     context.Context
	Limiter *rate.Limiter
	DstFd   *os.File
	SrcPath string
	SrcSize int64
}

// chunkSize is the largest unit moved per syscall. With a limiter it never
// exceeds the limiter's burst, since WaitN rejects larger requests.
func (p CopyFileParams) chunkSize() int {
	n := bufferSize
	if p.Limiter != nil && p.Limiter.Burst() > 0 && p.Limiter.Burst() < n {
		n = p.Limiter.Burst()
	}
	return n
}

// wait blocks until n bytes may be written and reports cancellation.
func (p CopyFileParams) wait(n int) error {
	ctx := p.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.Limiter == nil {
		return nil
	}
	return p.Limiter.WaitN(ctx, n)
}

// NewBWLimiter creates a rate.Limiter that caps throughput to bytesPerSec.
// The burst is 1 MiB, or the rate itself when that is smaller.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := bufferSize
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
