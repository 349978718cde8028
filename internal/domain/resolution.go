package domain

// ResolutionStrategy names how a detected conflict should be settled.
// Push never applies one of these on its own; it rejects and reports,
// and resolution happens wherever the client (or an operator) decides.
type ResolutionStrategy string

const (
	StrategyLWW    ResolutionStrategy = "LWW"
	StrategyManual ResolutionStrategy = "manual"
)

// FieldStrategy refines field-level merging.
type FieldStrategy string

const (
	FieldClientWins FieldStrategy = "client_wins"
	FieldServerWins FieldStrategy = "server_wins"
	FieldLWW        FieldStrategy = "LWW"
)

const (
	WinnerServer = "server"
	WinnerClient = "client"
)
