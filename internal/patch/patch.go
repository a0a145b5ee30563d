// Package patch applies modification lists to decoded ability trees: the
// persistent path. The tree is addressed directly, so occurrence selectors
// and injection points are ignored here; with duplicate operation tags in a
// group only the first occurrence is affected.
package patch

import (
	"fmt"
	"log/slog"

	"github.com/vantir/abilitymod/internal/mod"
	"github.com/vantir/abilitymod/internal/resource"
)

// Engine walks ability trees and applies flat modification lists.
type Engine struct {
	logger *slog.Logger
}

// New creates a patch engine. A nil logger disables logging.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

// Apply mutates the tree in place. Absent targets are silent no-ops: the
// engine cannot know the host's ability schema ahead of time, so a miss is
// not an error.
func (e *Engine) Apply(a *resource.Ability, mods []mod.Modification) {
	for _, m := range mods {
		group := a.Group(m.GroupID)
		if group == nil {
			e.logger.Debug("patch target group not found",
				"ability", a.ID, "group", m.GroupID, "kind", m.Kind.String())
			continue
		}
		e.applyToGroup(a.ID, group, m)
	}
}

func (e *Engine) applyToGroup(abilityID int32, group *resource.OperationGroup, m mod.Modification) {
	switch m.Kind {
	case mod.KindAddOperation:
		group.Operations = append(group.Operations, &resource.Operation{TypeTag: m.OperationID})

	case mod.KindRemoveOperation:
		if !group.RemoveFirstOperation(m.OperationID) {
			e.logger.Debug("patch target operation not found",
				"ability", abilityID, "group", group.ID, "op", m.OperationID)
		}

	case mod.KindSetProperty:
		op := group.FirstOperation(m.OperationID)
		if op == nil {
			return
		}
		prop := op.Property(m.PropertyID)
		if prop == nil || prop.Value == nil {
			// Set never creates: only an existing typed value is mutated.
			return
		}
		prop.Value = m.Value

	case mod.KindRemoveProperty:
		op := group.FirstOperation(m.OperationID)
		if op == nil {
			return
		}
		op.RemoveProperty(m.PropertyID)

	case mod.KindAddProperty:
		op := group.FirstOperation(m.OperationID)
		if op == nil {
			return
		}
		if prop := op.Property(m.PropertyID); prop != nil {
			prop.Value = m.Value
			return
		}
		op.Properties = append(op.Properties, &resource.Property{
			TypeTag: m.PropertyID,
			Value:   m.Value,
		})
	}
}

// PatchBuffer decodes the resource buffer, applies the modifications, and
// re-encodes. The returned buffer replaces the host-visible one.
func (e *Engine) PatchBuffer(codec resource.Codec, buf []byte, mods []mod.Modification) ([]byte, error) {
	tree, err := codec.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}
	e.Apply(tree, mods)
	out, err := codec.Encode(tree)
	if err != nil {
		return nil, fmt.Errorf("patch ability %d: %w", tree.ID, err)
	}
	return out, nil
}
