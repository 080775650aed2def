package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineSize = 1 << 20

// ReadPairs parses a capture file. Blank lines between records are skipped, so
// files written without the trailing blank line are accepted too.
func ReadPairs(r io.Reader) ([]Pair, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		pairs  []Pair
		block  []string
		lineNo int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(block) == 0 && strings.TrimSpace(line) == "" {
			continue
		}
		block = append(block, line)
		if len(block) < 5 {
			continue
		}

		if block[0] != TenantMarker || block[2] != BearerMarker || block[4] != Separator {
			return pairs, fmt.Errorf("malformed capture record ending at line %d", lineNo)
		}
		pairs = append(pairs, Pair{TenantID: block[1], Token: block[3]})
		block = block[:0]
	}
	if err := scanner.Err(); err != nil {
		return pairs, fmt.Errorf("failed to read capture file: %w", err)
	}
	if len(block) > 0 {
		return pairs, fmt.Errorf("truncated capture record at end of file (%d lines)", len(block))
	}
	return pairs, nil
}

// ReadFile parses the capture file at path. A missing file holds no pairs.
func ReadFile(path string) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer f.Close()
	return ReadPairs(f)
}
