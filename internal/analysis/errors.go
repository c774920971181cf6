package analysis

import (
	"fmt"
	"strconv"
)

// InsufficientDataError is returned when a series is shorter than the
// minimum number of points needed for any indicator.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient price data for analysis: have %d points, need at least %d", e.Have, e.Need)
}

// InvalidPriceError reports a series entry that is not a positive finite number.
type InvalidPriceError struct {
	Index int
	Value float64
}

func (e *InvalidPriceError) Error() string {
	return "invalid price at index " + strconv.Itoa(e.Index) + ": " + strconv.FormatFloat(e.Value, 'g', -1, 64)
}
