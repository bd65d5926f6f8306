package rbac

import "context"

// GuardState is the outcome of evaluating a guard.
type GuardState int

const (
	// Checking means access has not been resolved yet. Nothing guarded may run.
	Checking GuardState = iota
	// Allowed means the guarded operation may proceed.
	Allowed
	// Denied means the guarded operation must be refused.
	Denied
)

func (s GuardState) String() string {
	switch s {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "checking"
	}
}

// DeniedMessage is shown to users refused by a guard.
const DeniedMessage = "Access Denied"

// Guard protects an operation with a (resource, action) requirement.
type Guard struct {
	Resource   Resource
	Action     Action
	RedirectTo string
}

// Decision describes what a caller should do after evaluating a guard.
type Decision struct {
	State      GuardState `json:"-"`
	StateName  string     `json:"state"`
	Message    string     `json:"message,omitempty"`
	RedirectTo string     `json:"redirect_to,omitempty"`
}

// Evaluate returns Checking while snap is nil, then Allowed or Denied.
func (g Guard) Evaluate(snap *Snapshot) GuardState {
	if snap == nil {
		return Checking
	}
	if snap.Has(g.Resource, g.Action) {
		return Allowed
	}
	return Denied
}

// Decide evaluates the guard and fills in the refusal details on denial.
func (g Guard) Decide(snap *Snapshot) Decision {
	state := g.Evaluate(snap)
	d := Decision{State: state, StateName: state.String()}
	if state == Denied {
		d.Message = DeniedMessage
		d.RedirectTo = g.RedirectTo
	}
	return d
}

// Run executes fn only when the guard allows it. While the snapshot is still
// pending it returns Checking without running fn.
func (g Guard) Run(snap *Snapshot, fn func() error) (Decision, error) {
	d := g.Decide(snap)
	if d.State != Allowed {
		return d, nil
	}
	return d, fn()
}

type snapshotContextKey struct{}

// ContextWithSnapshot stores a resolved snapshot for the rest of the request.
func ContextWithSnapshot(ctx context.Context, snap *Snapshot) context.Context {
	return context.WithValue(ctx, snapshotContextKey{}, snap)
}

// SnapshotFromContext returns the request's snapshot, or nil when access has
// not been resolved.
func SnapshotFromContext(ctx context.Context) *Snapshot {
	snap, _ := ctx.Value(snapshotContextKey{}).(*Snapshot)
	return snap
}
