package entity

// Graph hands out root nodes over one transport. It keeps no registry: every
// call returns a new, unfetched node, and nodes reached through different
// traversals never share cached state.
type Graph struct {
	transport Transport
}

func NewGraph(t Transport) *Graph {
	return &Graph{transport: t}
}

func (g *Graph) Patient(id string) *Patient   { return newPatient(g.transport, id) }
func (g *Graph) Study(id string) *Study       { return newStudy(g.transport, id) }
func (g *Graph) Series(id string) *Series     { return newSeries(g.transport, id) }
func (g *Graph) Instance(id string) *Instance { return newInstance(g.transport, id) }

// Node returns the untyped cache node for ref.
func (g *Graph) Node(ref EntityRef) *Node {
	return newNode(g.transport, ref.Kind, ref.ID)
}
