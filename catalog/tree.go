package catalog

import (
	"sort"
)

// Node is a variable together with its children. Children is never nil.
type Node struct {
	*Variable
	Children []*Node
}

type nodeByID []*Node

func (a nodeByID) Len() int           { return len(a) }
func (a nodeByID) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a nodeByID) Less(i, j int) bool { return a[i].ID < a[j].ID }

// Nest arranges the variables of one table into a forest, with every sibling group ordered by ID.
// Variables that cannot be reached from a root (their parent is not in vars) are left out,
// and their number is returned as dropped.
//
// This is a single grouping pass keyed on ParentID, followed by a walk from the roots.
func Nest(vars []*Variable) (roots []*Node, dropped int) {
	byParent := map[string][]*Node{}
	for _, v := range vars {
		byParent[v.ParentID] = append(byParent[v.ParentID], &Node{Variable: v, Children: []*Node{}})
	}

	roots = attach(byParent, "")
	reached := 0
	stack := append([]*Node{}, roots...)
	for len(stack) != 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reached++
		n.Children = attach(byParent, n.ID)
		stack = append(stack, n.Children...)
		// Detach so that a cycle in bad data cannot be walked twice
		delete(byParent, n.ID)
	}
	return roots, len(vars) - reached
}

func attach(byParent map[string][]*Node, parentID string) []*Node {
	children := byParent[parentID]
	if len(children) == 0 {
		return []*Node{}
	}
	sort.Sort(nodeByID(children))
	return children
}

// Walk visits every node depth first, parents before children.
func Walk(roots []*Node, visit func(n *Node, level int)) {
	var walk func(nodes []*Node, level int)
	walk = func(nodes []*Node, level int) {
		for _, n := range nodes {
			visit(n, level)
			walk(n.Children, level+1)
		}
	}
	walk(roots, 0)
}
