package main

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Segment is one timed line of the analysis result
type Segment struct {
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

// Matches "[mm:ss.xx] text"; the brackets are optional.
var lrcLine = regexp.MustCompile(`^\[?(\d+):(\d+\.?\d*)\]?\s*(.*)`)

// parseLRC returns the timestamped lines of lyrics. Lines without a
// timestamp or without text are skipped.
func parseLRC(lyrics string) []Segment {
	var segments []Segment
	for _, line := range strings.Split(lyrics, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := lrcLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		minutes, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seconds, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(m[3])
		if text == "" {
			continue
		}
		segments = append(segments, Segment{Start: float64(minutes)*60 + seconds, Text: text})
	}
	return segments
}

// alignLines spreads the non-empty lyrics lines evenly over duration seconds.
func alignLines(lyrics string, duration float64) []Segment {
	var lines []string
	for _, line := range strings.Split(lyrics, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	segments := make([]Segment, 0, len(lines))
	for i, line := range lines {
		start := duration * float64(i) / float64(len(lines))
		segments = append(segments, Segment{Start: math.Round(start*100) / 100, Text: line})
	}
	return segments
}
