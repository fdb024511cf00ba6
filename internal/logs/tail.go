// Package logs tails the daemon log file for the CLI.
package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLineBytes = 1 << 20

// LastLines returns up to n trailing lines of path and the offset just
// past the data read, for handing to Follow. A missing file yields no
// lines and offset zero.
func LastLines(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, err
	}
	return lines, offset, nil
}

// Follow polls path from offset and emits each appended complete line.
// It returns when the context is done or emit reports an error. A log
// rotation (file shrinks) restarts from the beginning of the new file.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(line string) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	var partial strings.Builder

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				offset = 0
				partial.Reset()
				continue
			}
			return fmt.Errorf("stat log file: %w", err)
		}
		if info.Size() < offset {
			offset = 0
			partial.Reset()
		}
		if info.Size() == offset {
			continue
		}

		chunk, err := readAt(path, offset, info.Size()-offset)
		if err != nil {
			return err
		}
		offset += int64(len(chunk))

		partial.WriteString(chunk)
		text := partial.String()
		partial.Reset()
		for {
			idx := strings.IndexByte(text, '\n')
			if idx < 0 {
				partial.WriteString(text)
				break
			}
			if err := emit(strings.TrimRight(text[:idx], "\r")); err != nil {
				return err
			}
			text = text[idx+1:]
		}
	}
}

func readAt(path string, offset, length int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read log file: %w", err)
	}
	return string(buf[:n]), nil
}
