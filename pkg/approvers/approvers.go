// Package approvers turns approver declarations into concrete recipient ids.
package approvers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/stockflow/pkg/models"
	"github.com/dukex/stockflow/pkg/policy"
	"github.com/spf13/cast"
)

var ErrUnresolved = errors.New("approver could not be resolved")

// Resolver expands one approver into user ids. The approver's delegate, when
// set, is part of the result.
type Resolver interface {
	Resolve(ctx context.Context, approver models.Approver, instance *models.WorkflowInstance) ([]string, error)
}

// Directory resolves roles and groups from in-memory membership tables and
// dynamic approvers from instance metadata paths.
type Directory struct {
	mu     sync.RWMutex
	roles  map[string][]string
	groups map[string][]string
}

func NewDirectory() *Directory {
	return &Directory{
		roles:  make(map[string][]string),
		groups: make(map[string][]string),
	}
}

// SetRole replaces the members of a role.
func (d *Directory) SetRole(role string, users ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.roles[role] = slices.Clone(users)
}

// SetGroup replaces the members of a group.
func (d *Directory) SetGroup(group string, users ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.groups[group] = slices.Clone(users)
}

func (d *Directory) Resolve(_ context.Context, approver models.Approver, instance *models.WorkflowInstance) ([]string, error) {
	var (
		recipients []string
		err        error
	)

	switch approver.Type {
	case models.ApproverTypeUser:
		recipients = []string{approver.Value}
	case models.ApproverTypeRole:
		recipients, err = d.members(d.roles, "role", approver.Value)
	case models.ApproverTypeGroup:
		recipients, err = d.members(d.groups, "group", approver.Value)
	case models.ApproverTypeDynamic:
		recipients, err = dynamic(approver.Value, instance)
	default:
		err = fmt.Errorf("%w: unknown approver type %q", ErrUnresolved, approver.Type)
	}

	if err != nil {
		return nil, err
	}

	if approver.Delegate != "" && !slices.Contains(recipients, approver.Delegate) {
		recipients = append(recipients, approver.Delegate)
	}

	return recipients, nil
}

func (d *Directory) members(table map[string][]string, kind, name string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users, ok := table[name]
	if !ok || len(users) == 0 {
		return nil, fmt.Errorf("%w: %s %q has no members", ErrUnresolved, kind, name)
	}

	return slices.Clone(users), nil
}

// dynamic reads a user id, or a list of them, from the instance metadata.
// "entity.owner", "metadata.owner" and "owner" are the same path.
func dynamic(expression string, instance *models.WorkflowInstance) ([]string, error) {
	if instance == nil {
		return nil, fmt.Errorf("%w: dynamic approver %q without instance", ErrUnresolved, expression)
	}

	path := strings.TrimPrefix(strings.TrimPrefix(expression, "entity."), "metadata.")

	value, ok := policy.Lookup(instance.Metadata, path)
	if !ok || value == nil {
		return nil, fmt.Errorf("%w: dynamic approver %q not found in metadata", ErrUnresolved, expression)
	}

	var users []string

	switch v := value.(type) {
	case string:
		users = []string{v}
	default:
		users = cast.ToStringSlice(v)
	}

	users = slices.DeleteFunc(users, func(u string) bool { return strings.TrimSpace(u) == "" })
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: dynamic approver %q resolved to no users", ErrUnresolved, expression)
	}

	return users, nil
}

// ResolveAll resolves every approver, dropping duplicates while keeping order.
// Approvers that fail to resolve are skipped and their errors joined.
func ResolveAll(ctx context.Context, resolver Resolver, list []models.Approver, instance *models.WorkflowInstance) ([]string, error) {
	var (
		recipients []string
		errs       []error
	)

	for _, approver := range list {
		users, err := resolver.Resolve(ctx, approver, instance)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		for _, user := range users {
			if !slices.Contains(recipients, user) {
				recipients = append(recipients, user)
			}
		}
	}

	return recipients, errors.Join(errs...)
}
