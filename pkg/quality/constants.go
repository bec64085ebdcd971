package quality

// Scoring constants. Every deduction, bonus and level boundary lives here.
const (
	// BaseScore is the score of code with no issues and no bonuses.
	BaseScore = 100.0

	// Per-issue deductions.
	PenaltyCritical = 20.0
	PenaltyMajor    = 10.0
	PenaltyMinor    = 3.0

	// Bonuses for good practice, added before clamping.
	BonusDocstrings = 5.0
	BonusTypeHints  = 5.0
	BonusTests      = 10.0

	// Score range.
	MinScore = 0.0
	MaxScore = 100.0

	// Level boundaries (inclusive lower bounds).
	ThresholdExcellent = 90.0
	ThresholdGood      = 75.0
	ThresholdFair      = 50.0

	// LargeFileLines is the total_lines count above which splitting the file
	// is suggested.
	LargeFileLines = 500
)
