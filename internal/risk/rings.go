package risk

import "github.com/blockstat/forensics/internal/graph"

// Ring is a strongly connected set of wallets: every member can reach every
// other member along directed links. Coordinated wash trading shows up as
// such a cycle of transfers.
type Ring []string

// DetectRings returns the strongly connected components with at least
// MinRingSize members, in discovery order (Tarjan's algorithm, nodes visited
// in dataset order, edges in link order).
func DetectRings(nodes []graph.Node, links []graph.Link) []Ring {
	order := make([]string, 0, len(nodes))
	adj := make(map[string][]string, len(nodes))
	seen := make(map[string]bool, len(nodes))
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for _, n := range nodes {
		add(n.ID)
	}
	for _, l := range links {
		add(l.Source)
		add(l.Target)
		adj[l.Source] = append(adj[l.Source], l.Target)
	}

	t := tarjan{
		adj:     adj,
		index:   make(map[string]int, len(order)),
		lowlink: make(map[string]int, len(order)),
		onStack: make(map[string]bool, len(order)),
	}
	for _, id := range order {
		if _, visited := t.index[id]; !visited {
			t.strongConnect(id)
		}
	}
	return t.rings
}

type tarjan struct {
	adj     map[string][]string
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	next    int
	rings   []Ring
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] != t.index[v] {
		return
	}
	var component Ring
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		component = append(component, w)
		if w == v {
			break
		}
	}
	if len(component) >= MinRingSize {
		// Restore discovery order within the component.
		for i, j := 0, len(component)-1; i < j; i, j = i+1, j-1 {
			component[i], component[j] = component[j], component[i]
		}
		t.rings = append(t.rings, component)
	}
}

// WashTradingScore is the share (0-100) of transactions sent by ring members
// that stay inside their own ring. Volume that circulates back to its
// senders is the signature of wash trading. It returns 0 when no ring exists.
func WashTradingScore(nodes []graph.Node, links []graph.Link) (float64, error) {
	if len(links) == 0 {
		return 0, &DegenerateInputWarning{Metric: MetricWashTrading.Field(), Reason: "no links"}
	}
	rings := DetectRings(nodes, links)
	if len(rings) == 0 {
		return 0, nil
	}

	member := make(map[string]int)
	for i, r := range rings {
		for _, id := range r {
			member[id] = i
		}
	}

	var inside, sent int
	for _, l := range links {
		src, ok := member[l.Source]
		if !ok {
			continue
		}
		sent += l.Count
		if dst, ok := member[l.Target]; ok && dst == src {
			inside += l.Count
		}
	}
	if sent == 0 {
		return 0, nil
	}
	return clamp(100*float64(inside)/float64(sent), 0, 100), nil
}
