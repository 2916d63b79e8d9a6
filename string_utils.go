package hdfsftpd

import (
	"bufio"
	"strings"
)

// parseLine splits a received command line into its verb and argument.
// The argument is the rest of the line up to CR or LF; an empty argument
// is allowed (spec §4.4).
func parseLine(line string) (string, string) {
	trimmed := strings.TrimRight(line, "\r\n")

	idx := strings.IndexByte(trimmed, ' ')
	if idx < 0 {
		return trimmed, ""
	}

	return trimmed[:idx], trimmed[idx+1:]
}

func quoteDoubling(s string) string {
	if !strings.Contains(s, "\"") {
		return s
	}

	return strings.ReplaceAll(s, "\"", `""`)
}

func getMessageLines(message string) []string {
	lines := make([]string, 0, 1)
	sc := bufio.NewScanner(strings.NewReader(message))

	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	if len(lines) == 0 {
		lines = append(lines, "")
	}

	return lines
}
