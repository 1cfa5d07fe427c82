package rewrite

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	createSchemaLine = regexp.MustCompile(`^CREATE SCHEMA (?:IF NOT EXISTS )?\S+;\s*$`)
	copyStartLine    = regexp.MustCompile(`^COPY .* FROM stdin;\s*$`)
)

// RewriteDump copies a plain-format pg_dump stream from src to dst, mapping
// the source schema onto the target. Rows inside COPY blocks are passed
// through untouched.
func (r *Rewriter) RewriteDump(dst io.Writer, src io.Reader, sourceSchema string) error {
	reader := bufio.NewReaderSize(src, 64*1024)
	writer := bufio.NewWriter(dst)

	inCopy := false
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return fmt.Errorf("failed to read dump stream: %w", readErr)
		}

		if line != "" {
			if inCopy {
				if strings.TrimRight(line, "\r\n") == `\.` {
					inCopy = false
				}
			} else {
				line = r.rewriteDumpLine(line, sourceSchema)
				if copyStartLine.MatchString(line) {
					inCopy = true
				}
			}

			if _, err := writer.WriteString(line); err != nil {
				return fmt.Errorf("failed to write dump stream: %w", err)
			}
		}

		if readErr != nil {
			break
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to write dump stream: %w", err)
	}
	return nil
}

func (r *Rewriter) rewriteDumpLine(line, sourceSchema string) string {
	if createSchemaLine.MatchString(line) {
		return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;\n", Ident(r.target))
	}

	line = strings.Replace(line, "SCHEMA "+Ident(sourceSchema)+" ", "SCHEMA "+Ident(r.target)+" ", 1)
	return r.Rewrite(line, sourceSchema)
}
