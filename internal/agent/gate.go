package agent

// gate holds at most one pending proposal. The proposal pointer and the
// awaiting flag are only ever set and cleared together, which keeps the
// invariant "proposal != nil iff awaitingApproval" true by construction.
type gate struct {
	proposal *Proposal
	awaiting bool
}

func (g *gate) propose(p Proposal) {
	cp := p
	g.proposal = &cp
	g.awaiting = true
}

// resolve records that the operator (or a resolving event) has decided.
// This models "a decision was made", not "the remote acknowledged it".
func (g *gate) resolve() {
	g.proposal = nil
	g.awaiting = false
}

func (g *gate) current() *Proposal {
	if g.proposal == nil {
		return nil
	}
	cp := *g.proposal
	return &cp
}
