package daily

import "errors"

// Sentinel kinds for daily selection.
var (
	ErrNoDailyCategories = errors.New("no daily categories found")
	ErrClaimLost         = errors.New("daily claim lost and no category played today")
)
