package ballot

// Operation names a ledger write for observers.
type Operation string

const (
	OpCast    Operation = "cast"
	OpRetract Operation = "retract"
)

// Observer is notified of ledger outcomes. Implementations must be safe for
// concurrent use and must not block; observability.Metrics is the production one.
type Observer interface {
	BallotCast(b Ballot)
	BallotRetracted(b Ballot)
	Rejected(op Operation, err error)
}

type nopObserver struct{}

func (nopObserver) BallotCast(Ballot)         {}
func (nopObserver) BallotRetracted(Ballot)    {}
func (nopObserver) Rejected(Operation, error) {}
