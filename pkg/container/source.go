package container

import (
	"bytes"
	"io"
	"os"
)

// MediaSource produces the bytes of one media item. The builder does not
// care whether the bytes live on disk or in memory; the authoring side's
// media storage supplies whichever it has.
type MediaSource interface {
	Open() (io.ReadCloser, error)
}

// FileSource reads media bytes from a file on disk.
func FileSource(path string) MediaSource { return fileSource(path) }

type fileSource string

func (f fileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// BytesSource serves media bytes from memory.
func BytesSource(data []byte) MediaSource { return bytesSource(data) }

type bytesSource []byte

func (b bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}
