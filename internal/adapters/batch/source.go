package batch

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
)

//go:embed messages.txt
var embeddedMessages []byte

// FileSource reads one message per line from a file on disk.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return s.Path }

func (s FileSource) ReadLines() ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLines(f)
}

// ReaderSource reads lines from an in-memory resource.
type ReaderSource struct {
	name string
	data []byte
}

// EmbeddedSource serves the messages.txt bundled with the binary.
func EmbeddedSource() ReaderSource {
	return ReaderSource{name: "embedded:messages.txt", data: embeddedMessages}
}

func NewReaderSource(name string, data []byte) ReaderSource {
	return ReaderSource{name: name, data: data}
}

func (s ReaderSource) Name() string { return s.name }

func (s ReaderSource) ReadLines() ([]string, error) {
	return readLines(bytes.NewReader(s.data))
}

// readLines keeps blank lines; only the final line terminator is dropped.
func readLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return lines, nil
}
