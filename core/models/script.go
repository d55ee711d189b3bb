package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a subtitle-style "HH:MM:SS,mmm" offset.
type Timestamp string

// ParseTimestamp converts "HH:MM:SS,mmm" (or "HH:MM:SS.mmm") to a duration.
func ParseTimestamp(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	secParts := strings.FieldsFunc(parts[2], func(r rune) bool { return r == ',' || r == '.' })
	if len(secParts) == 0 || len(secParts) > 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in %q: %w", value, err)
	}
	seconds, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in %q: %w", value, err)
	}
	millis := 0
	if len(secParts) == 2 {
		millis, err = strconv.Atoi(secParts[1])
		if err != nil {
			return 0, fmt.Errorf("invalid milliseconds in %q: %w", value, err)
		}
	}
	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 || millis < 0 || millis > 999 {
		return 0, fmt.Errorf("timestamp out of range %q", value)
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}

// FormatTimestamp renders d as "HH:MM:SS,mmm".
func FormatTimestamp(d time.Duration) Timestamp {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return Timestamp(fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms))
}

// Duration parses the timestamp.
func (t Timestamp) Duration() (time.Duration, error) {
	return ParseTimestamp(string(t))
}

// Seconds parses the timestamp into fractional seconds.
func (t Timestamp) Seconds() (float64, error) {
	d, err := t.Duration()
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

// Segment is one captioned slice of the narration script
type Segment struct {
	StartTime Timestamp `json:"startTime"`
	EndTime   Timestamp `json:"endTime"`
	Caption   string    `json:"caption"`
	Type      string    `json:"type,omitempty"`
	Feature   string    `json:"feature,omitempty"`
}

// Script is the ordered narration script
type Script struct {
	Segments []Segment `json:"segments"`
}

var ErrEmptyScript = errors.New("script has no segments")

// Validate checks that segments are parseable, time-ordered and non-overlapping.
func (s Script) Validate() error {
	if len(s.Segments) == 0 {
		return ErrEmptyScript
	}
	var prevEnd time.Duration
	for i, seg := range s.Segments {
		start, err := seg.StartTime.Duration()
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		end, err := seg.EndTime.Duration()
		if err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
		if end <= start {
			return fmt.Errorf("segment %d: end %s not after start %s", i, seg.EndTime, seg.StartTime)
		}
		if i > 0 && start < prevEnd {
			return fmt.Errorf("segment %d: overlaps previous segment", i)
		}
		if strings.TrimSpace(seg.Caption) == "" {
			return fmt.Errorf("segment %d: empty caption", i)
		}
		prevEnd = end
	}
	return nil
}

// Window returns the start of the first segment and the end of the last.
func (s Script) Window() (time.Duration, time.Duration, error) {
	if len(s.Segments) == 0 {
		return 0, 0, ErrEmptyScript
	}
	start, err := s.Segments[0].StartTime.Duration()
	if err != nil {
		return 0, 0, err
	}
	end, err := s.Segments[len(s.Segments)-1].EndTime.Duration()
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// SRT renders the script as a SubRip document.
func (s Script) SRT() string {
	var b strings.Builder
	for i, seg := range s.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, seg.StartTime, seg.EndTime, strings.TrimSpace(seg.Caption))
	}
	return b.String()
}

// Feature is one product capability highlighted in the demo
type Feature struct {
	Name        string    `json:"name"`
	StartTime   Timestamp `json:"startTime"`
	EndTime     Timestamp `json:"endTime"`
	Description string    `json:"description"`
}

// FeatureList is the analysis result for a demo video
type FeatureList struct {
	Features []Feature `json:"features"`
}
