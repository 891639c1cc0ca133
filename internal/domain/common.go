package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OptionClass distinguishes call and put contracts.
type OptionClass string

const (
	Call OptionClass = "CE"
	Put  OptionClass = "PE"
)

// Direction represents the direction of a position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen            PositionStatus = "open"
	StatusPartiallyExited PositionStatus = "partially_exited" // quantity reduced, position still live
	StatusClosed          PositionStatus = "closed"
)

// ExitReason indicates why a position was closed.
type ExitReason string

const (
	ExitReasonNone     ExitReason = ""
	ExitReasonStopLoss ExitReason = "STOP_LOSS"
	ExitReasonTarget   ExitReason = "TARGET"
	ExitReasonTimeExit ExitReason = "TIME_EXIT"
	ExitReasonCleanup  ExitReason = "CLEANUP" // forced close on shutdown
)
