// Package netgraph maintains the partition of lattice nodes into connected
// networks under incremental add/update/remove events.
//
// Nodes are stored in one arena keyed by packed position; networks refer to
// their members by key and edges are recomputed on the fly by offsetting a
// position by a direction. Two nodes share an edge only when both declare the
// connecting direction toward each other.
package netgraph

import (
	"fmt"

	"mechpower.ai/internal/sim/power/geom"
)

// ID identifies a network. Zero means "no network".
type ID uint64

const None ID = 0

type Action uint8

const (
	ActionAdd Action = iota + 1
	ActionUpdate
	ActionUpdateInNetwork
	ActionRemove
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "ADD"
	case ActionUpdate:
		return "UPDATE"
	case ActionUpdateInNetwork:
		return "UPDATE_IN_NETWORK"
	case ActionRemove:
		return "REMOVE"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// Node is the part of a graph vertex the manager needs. The network id is
// written only by the manager.
type Node interface {
	Key() geom.Key
	Pos() geom.Pos
	Connections() geom.DirSet
	NetworkID() ID
	SetNetworkID(ID)
}

// Rules decide how latched state flows across an edge. L is a plain value
// describing a node's latched orientation; planning works on L values only so
// that a rejected action never touches committed node state.
//
// Directions follow the outgoing convention: d always points away from the
// node named first, toward its neighbour.
type Rules[N Node, L comparable] interface {
	// Latch returns the committed latch of n, if any.
	Latch(n N) (L, bool)
	// Default is the latch a node takes when it founds a network alone.
	Default(n N) L
	// Adopt is the latch n takes when driven by neighbour nb (latched nbl)
	// across d.
	Adopt(n N, d geom.Direction, nb N, nbl L) L
	// Agree reports whether n latched nl and nb latched nbl are consistent
	// across d.
	Agree(n N, nl L, d geom.Direction, nb N, nbl L) bool
	// Commit stores l as the committed latch of n.
	Commit(n N, l L)
	// Rigid reports whether n's committed latch may never be forced to a
	// different orientation.
	Rigid(n N) bool
	// Accept reports whether n can take l without changing the orientation
	// it is committed to. Nodes that are not rigid accept anything.
	Accept(n N, l L) bool
}

// Observer is notified of topology changes. Calls happen synchronously from
// inside PerformAction, after the manager's maps are consistent.
type Observer interface {
	NetworkCreated(id ID)
	// NetworkMerged reports that every member of from moved into into; from no
	// longer exists.
	NetworkMerged(into, from ID)
	// NetworkSplit reports that a connected component of from was peeled off
	// into the new network into.
	NetworkSplit(from, into ID)
	// NetworkChanged reports a membership or member parameter change.
	NetworkChanged(id ID)
	NetworkRemoved(id ID)
	NodeRejected(pos geom.Pos, action Action)
}

// NopObserver ignores every event; embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) NetworkCreated(ID)             {}
func (NopObserver) NetworkMerged(ID, ID)          {}
func (NopObserver) NetworkSplit(ID, ID)           {}
func (NopObserver) NetworkChanged(ID)             {}
func (NopObserver) NetworkRemoved(ID)             {}
func (NopObserver) NodeRejected(geom.Pos, Action) {}

func invariantf(format string, args ...any) {
	panic("netgraph: invariant violated: " + fmt.Sprintf(format, args...))
}
