package ui

// Key binding constants used in handleKey.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeySpace     = " "
	KeyRecord    = "r"
	KeyReview    = "p"
	KeySkip      = "n"
	KeyRetry     = "a"
	KeyReplay    = "l"
	KeyPlay      = "enter"
)
