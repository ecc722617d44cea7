package internal

import (
	"log/slog"
	"strings"
	"time"
)

// DateParser converts a partition or checkpoint identifier to a point
// in time. Parser failures surface as ParseError.
type DateParser func(string) (time.Time, error)

// ComparisonFunction decides whether a partition should be loaded
// relative to a remembered checkpoint. The checkpoint is set once,
// from the first call: the explicit checkpoint argument wins when
// non-empty, otherwise that call's partition id is used. Later calls
// never overwrite it.
type ComparisonFunction struct {
	parser DateParser
	logger *slog.Logger

	checkpoint  string
	initialized bool
}

func NewComparisonFunction(parser DateParser) *ComparisonFunction {
	return &ComparisonFunction{parser: parser, logger: slog.Default()}
}

// initCheckpoint is a no-op after the first observation.
func (c *ComparisonFunction) initCheckpoint(partitionID, checkpoint string) {
	if c.initialized {
		return
	}
	checkpoint = strings.TrimSpace(checkpoint)
	if checkpoint == "" {
		c.checkpoint = partitionID
	} else {
		c.checkpoint = checkpoint
	}
	c.initialized = true
}

// monthIndex counts months since year zero, so adjacency checks are
// immune to day-of-month normalization.
func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month())
}

func (c *ComparisonFunction) parse(partitionID string) (chk, part time.Time, err error) {
	chk, chkErr := c.parser(c.checkpoint)
	if chkErr != nil {
		return chk, part, &ParseError{Partition: partitionID, Checkpoint: c.checkpoint, Err: chkErr}
	}
	part, partErr := c.parser(partitionID)
	if partErr != nil {
		return chk, part, &ParseError{Partition: partitionID, Checkpoint: c.checkpoint, Err: partErr}
	}
	return chk, part, nil
}

// SameMonth admits partitions by month relative to the checkpoint.
// Method "none" (also "no", "null", "n") admits only the checkpoint's
// month, "auto" (the default) the same or the following month, and
// "next" only the following month.
func (c *ComparisonFunction) SameMonth(partitionID, checkpoint, incrementMethod string) (bool, error) {
	c.initCheckpoint(partitionID, checkpoint)

	method := strings.ToLower(strings.TrimSpace(incrementMethod))
	if method == "" {
		method = "auto"
	}
	switch method {
	case "no", "null", "none", "n", "auto", "next":
	default:
		return false, &ConfigError{Option: "increment_method", Reason: "invalid value " + incrementMethod}
	}

	chk, part, err := c.parse(partitionID)
	if err != nil {
		return false, err
	}

	// compare month indexes rather than AddDate, which normalizes an
	// end-of-month checkpoint past the following month (Jan 31 + 1
	// month lands on Mar 2)
	sameMonth := monthIndex(part) == monthIndex(chk)
	nextMonth := monthIndex(part) == monthIndex(chk)+1

	var load bool
	switch method {
	case "auto":
		load = sameMonth || nextMonth
	case "next":
		load = nextMonth
	default:
		load = sameMonth
	}

	c.logger.Info("checkpoint comparison",
		"checkpoint", c.checkpoint, "partition", partitionID, "load", load)
	return load, nil
}

// Boundary admits partitions inside a day window around the
// checkpoint. A zero left collapses the lower bound to the checkpoint
// itself; a zero right drops the upper bound entirely. close controls
// inclusivity: "left", "right", "both", or empty for both.
func (c *ComparisonFunction) Boundary(partitionID, checkpoint string, left, right int, close string) (bool, error) {
	c.initCheckpoint(partitionID, checkpoint)

	switch close {
	case "left", "right", "both", "":
	default:
		return false, &ConfigError{Option: "close", Reason: "invalid value " + close}
	}

	chk, part, err := c.parse(partitionID)
	if err != nil {
		return false, err
	}

	lower := chk
	if left != 0 {
		lower = chk.AddDate(0, 0, -left)
	}
	leftOK := !part.Before(lower)
	if close == "right" {
		leftOK = part.After(lower)
	}

	rightOK := true
	if right != 0 {
		upper := chk.AddDate(0, 0, right)
		rightOK = !part.After(upper)
		if close == "left" {
			rightOK = part.Before(upper)
		}
	}

	load := leftOK && rightOK
	c.logger.Debug("checkpoint comparison",
		"checkpoint", c.checkpoint, "partition", partitionID, "load", load)
	return load, nil
}
