// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/absmach/bookshelf/pkg/handler"
)

// Operation names a group handler.
type Operation string

const (
	OpList   Operation = "list"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

// itemMethods maps item-path methods to operations, in Allow header order.
var itemMethods = []struct {
	method string
	op     Operation
}{
	{http.MethodPost, OpCreate},
	{http.MethodPut, OpUpdate},
	{http.MethodPatch, OpEdit},
	{http.MethodDelete, OpDelete},
}

// Group is one resource's route table: an exact collection path served by
// List for any method, and an item prefix dispatched on method.
type Group struct {
	Name       string
	Collection string
	ItemPrefix string

	List   handler.Handler
	Create handler.Handler
	Update handler.Handler
	Edit   handler.Handler
	Delete handler.Handler
}

func (g Group) handler(op Operation) handler.Handler {
	switch op {
	case OpList:
		return g.List
	case OpCreate:
		return g.Create
	case OpUpdate:
		return g.Update
	case OpEdit:
		return g.Edit
	case OpDelete:
		return g.Delete
	default:
		return nil
	}
}

// Outcome is the result of routing a request.
type Outcome int

const (
	// Matched means a handler was selected.
	Matched Outcome = iota
	// NoRoute means no group's collection path or item prefix matched.
	NoRoute
	// MethodNotSupported means an item prefix matched but the method has no handler.
	MethodNotSupported
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NoRoute:
		return "no_route"
	case MethodNotSupported:
		return "method_not_supported"
	default:
		return "unknown"
	}
}

// Match describes the routing decision for a request.
type Match struct {
	Outcome Outcome
	// Route is "<group>.<operation>" when matched.
	Route string
	// Handler is the gated handler to invoke when matched.
	Handler handler.Handler
	// Allow lists the supported methods when the outcome is MethodNotSupported.
	Allow []string
}

type compiled struct {
	name       string
	collection string
	prefix     string
	ops        map[Operation]handler.Handler
	allow      []string
}

// Router dispatches requests across resource groups.
type Router struct {
	groups []compiled
}

// New compiles groups into a Router. Every handler is wrapped by gate and
// marks the request as Handling just before it runs. Groups are consulted
// in the given order.
func New(gate handler.Middleware, groups ...Group) (*Router, error) {
	rt := &Router{}
	seen := make(map[string]bool)

	for _, g := range groups {
		if g.Name == "" {
			return nil, fmt.Errorf("group without a name")
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("duplicate group %q", g.Name)
		}
		if g.Collection == "" && g.ItemPrefix == "" {
			return nil, fmt.Errorf("group %q has no paths", g.Name)
		}
		seen[g.Name] = true

		c := compiled{
			name:       g.Name,
			collection: g.Collection,
			prefix:     g.ItemPrefix,
			ops:        make(map[Operation]handler.Handler),
		}
		for _, op := range []Operation{OpList, OpCreate, OpUpdate, OpEdit, OpDelete} {
			if h := g.handler(op); h != nil {
				c.ops[op] = handler.Chain(h, gate, handler.Enter(handler.Handling))
			}
		}
		for _, im := range itemMethods {
			if _, ok := c.ops[im.op]; ok {
				c.allow = append(c.allow, im.method)
			}
		}
		rt.groups = append(rt.groups, c)
	}

	return rt, nil
}

// Route resolves r against the groups. For each group the exact collection
// path is checked before the item prefix. A prefix match ends the search even
// if the method is not supported.
func (rt *Router) Route(r *http.Request) Match {
	path := r.URL.Path

	for _, g := range rt.groups {
		if g.collection != "" && path == g.collection {
			h, ok := g.ops[OpList]
			if !ok {
				return Match{Outcome: MethodNotSupported, Allow: g.allow}
			}
			return Match{Outcome: Matched, Route: g.name + "." + string(OpList), Handler: h}
		}

		if g.prefix != "" && strings.HasPrefix(path, g.prefix) {
			op, ok := itemOperation(r.Method)
			if !ok {
				return Match{Outcome: MethodNotSupported, Allow: g.allow}
			}
			h, ok := g.ops[op]
			if !ok {
				return Match{Outcome: MethodNotSupported, Allow: g.allow}
			}
			return Match{Outcome: Matched, Route: g.name + "." + string(op), Handler: h}
		}
	}

	return Match{Outcome: NoRoute}
}

func itemOperation(method string) (Operation, bool) {
	for _, im := range itemMethods {
		if im.method == method {
			return im.op, true
		}
	}
	return "", false
}
