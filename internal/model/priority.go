package model

import (
	"reflect"

	"github.com/kean-go/imagepipeline/internal/common"
)

// Priority orders work across the pipeline's Work Queues. A Job's
// effective priority is the max of its live subscribers' priorities
// (spec §4.2), and that value propagates to the active work-queue item
// and, recursively, to the Job's dependency.
type Priority uint8

const (
	priorityVeryLow Priority = iota
	priorityLow
	priorityNormal
	priorityHigh
	priorityVeryHigh
)

var EPriority = Priority(priorityNormal)

func (Priority) VeryLow() Priority  { return priorityVeryLow }
func (Priority) Low() Priority      { return priorityLow }
func (Priority) Normal() Priority   { return priorityNormal }
func (Priority) High() Priority     { return priorityHigh }
func (Priority) VeryHigh() Priority { return priorityVeryHigh }

func (p Priority) String() string {
	switch p {
	case priorityVeryLow:
		return "veryLow"
	case priorityLow:
		return "low"
	case priorityNormal:
		return "normal"
	case priorityHigh:
		return "high"
	case priorityVeryHigh:
		return "veryHigh"
	default:
		return common.EnumHelper{}.StringInteger(p, reflect.TypeOf(p))
	}
}

// Max returns the greater of two priorities.
func (p Priority) Max(other Priority) Priority {
	if other > p {
		return other
	}
	return p
}
