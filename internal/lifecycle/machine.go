package lifecycle

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"bookly/backend/internal/domain"
)

var (
	ErrInvalidTables          = errors.New("invalid lifecycle tables")
	ErrIllegalTransition      = errors.New("illegal transition")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrReasonRequired         = errors.New("reason is required")
	ErrInvalidInput           = errors.New("invalid transition input")
)

type ErrorKind string

const (
	KindIllegalTransition      ErrorKind = "illegal_transition"
	KindInsufficientPermission ErrorKind = "insufficient_permission"
	KindReasonRequired         ErrorKind = "reason_required"
	KindInvalidInput           ErrorKind = "invalid_input"
)

// TransitionError explains why a transition was refused. Callers branch on
// Kind or use errors.Is with the package sentinels.
type TransitionError struct {
	Kind   ErrorKind
	From   domain.Status
	To     domain.Status
	Role   domain.Role
	Action domain.Action
	Detail string
}

func (e *TransitionError) Error() string {
	switch e.Kind {
	case KindIllegalTransition:
		if e.Detail != "" {
			return fmt.Sprintf("illegal transition %s -> %s: %s", e.From, e.To, e.Detail)
		}
		return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
	case KindInsufficientPermission:
		return fmt.Sprintf("role %s may not %s", e.Role, e.Action)
	case KindReasonRequired:
		return fmt.Sprintf("a reason is required to %s", e.Action)
	default:
		return "invalid transition input: " + e.Detail
	}
}

func (e *TransitionError) Is(target error) bool {
	switch target {
	case ErrIllegalTransition:
		return e.Kind == KindIllegalTransition
	case ErrInsufficientPermission:
		return e.Kind == KindInsufficientPermission
	case ErrReasonRequired:
		return e.Kind == KindReasonRequired
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	}
	return false
}

// Validation is the outcome of ValidateTransition. Err is a *TransitionError when !Valid.
type Validation struct {
	Valid bool
	Err   error
}

type ActionOption struct {
	Action         domain.Action `json:"action"`
	TargetStatus   domain.Status `json:"target_status"`
	Label          string        `json:"label"`
	RequiresReason bool          `json:"requires_reason"`
}

// Request is one attempted transition. To may be left empty to use the action's target.
type Request struct {
	To       domain.Status
	Action   domain.Action
	ActorID  string
	Role     domain.Role
	Reason   string
	Metadata map[string]string
}

// Machine is immutable after construction and safe for concurrent use.
type Machine struct {
	edges   map[domain.Status]map[domain.Status]struct{}
	actions map[domain.Action]ActionSpec
	perms   map[domain.Action]map[domain.Role]struct{}
	order   []domain.Action
}

func New(t Tables) (*Machine, error) {
	m := &Machine{
		edges:   make(map[domain.Status]map[domain.Status]struct{}, len(t.Edges)),
		actions: make(map[domain.Action]ActionSpec, len(t.Actions)),
		perms:   make(map[domain.Action]map[domain.Role]struct{}, len(t.Permissions)),
	}

	for _, st := range domain.Statuses {
		if _, ok := t.Edges[st]; !ok {
			return nil, fmt.Errorf("%w: no edge entry for status %q", ErrInvalidTables, st)
		}
	}
	for from, tos := range t.Edges {
		if !from.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTables, from)
		}
		set := make(map[domain.Status]struct{}, len(tos))
		for _, to := range tos {
			if !to.Valid() {
				return nil, fmt.Errorf("%w: unknown target %q from %q", ErrInvalidTables, to, from)
			}
			set[to] = struct{}{}
		}
		m.edges[from] = set
	}
	for _, st := range TerminalStatuses {
		if len(m.edges[st]) != 0 {
			return nil, fmt.Errorf("%w: terminal status %q has outbound edges", ErrInvalidTables, st)
		}
	}
	if len(m.edges[domain.StatusRequested]) == 0 {
		return nil, fmt.Errorf("%w: initial status has no outbound edges", ErrInvalidTables)
	}

	produced := make(map[domain.Status]struct{}, len(t.Actions))
	for action, spec := range t.Actions {
		if !spec.Target.Valid() {
			return nil, fmt.Errorf("%w: action %q targets unknown status %q", ErrInvalidTables, action, spec.Target)
		}
		roles, ok := t.Permissions[action]
		if !ok || len(roles) == 0 {
			return nil, fmt.Errorf("%w: action %q has no permitted roles", ErrInvalidTables, action)
		}
		set := make(map[domain.Role]struct{}, len(roles))
		for _, r := range roles {
			if !r.Valid() {
				return nil, fmt.Errorf("%w: action %q permits unknown role %q", ErrInvalidTables, action, r)
			}
			set[r] = struct{}{}
		}
		m.actions[action] = spec
		m.perms[action] = set
		produced[spec.Target] = struct{}{}
	}
	for action := range t.Permissions {
		if _, ok := t.Actions[action]; !ok {
			return nil, fmt.Errorf("%w: permissions for undefined action %q", ErrInvalidTables, action)
		}
	}
	for from, tos := range m.edges {
		for to := range tos {
			if _, ok := produced[to]; !ok {
				return nil, fmt.Errorf("%w: edge %q -> %q is produced by no action", ErrInvalidTables, from, to)
			}
		}
	}

	if len(t.ActionOrder) != len(t.Actions) {
		return nil, fmt.Errorf("%w: action order must list every action exactly once", ErrInvalidTables)
	}
	seen := make(map[domain.Action]struct{}, len(t.ActionOrder))
	for _, a := range t.ActionOrder {
		if _, ok := t.Actions[a]; !ok {
			return nil, fmt.Errorf("%w: action order names undefined action %q", ErrInvalidTables, a)
		}
		if _, dup := seen[a]; dup {
			return nil, fmt.Errorf("%w: action %q listed twice in order", ErrInvalidTables, a)
		}
		seen[a] = struct{}{}
	}
	m.order = append([]domain.Action(nil), t.ActionOrder...)

	return m, nil
}

// Default returns a Machine over DefaultTables.
func Default() *Machine {
	m, err := New(DefaultTables())
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Machine) CanTransition(from, to domain.Status) bool {
	_, ok := m.edges[from][to]
	return ok
}

func (m *Machine) IsTerminal(st domain.Status) bool {
	tos, ok := m.edges[st]
	return ok && len(tos) == 0
}

func (m *Machine) Permitted(action domain.Action, role domain.Role) bool {
	_, ok := m.perms[action][role]
	return ok
}

func (m *Machine) Action(action domain.Action) (ActionSpec, bool) {
	spec, ok := m.actions[action]
	return spec, ok
}

// ValidateTransition checks structural legality first, then that action
// produces newStatus, then role permission.
func (m *Machine) ValidateTransition(appt domain.Appointment, newStatus domain.Status, role domain.Role, action domain.Action) Validation {
	if err := m.validate(appt.Status, newStatus, role, action); err != nil {
		return Validation{Err: err}
	}
	return Validation{Valid: true}
}

func (m *Machine) validate(from, to domain.Status, role domain.Role, action domain.Action) *TransitionError {
	base := TransitionError{From: from, To: to, Role: role, Action: action}
	invalid := func(detail string) *TransitionError {
		e := base
		e.Kind = KindInvalidInput
		e.Detail = detail
		return &e
	}

	switch {
	case !from.Valid():
		return invalid(fmt.Sprintf("unknown current status %q", from))
	case !to.Valid():
		return invalid(fmt.Sprintf("unknown target status %q", to))
	case !role.Valid():
		return invalid(fmt.Sprintf("unknown role %q", role))
	}
	spec, ok := m.actions[action]
	if !ok {
		return invalid(fmt.Sprintf("unknown action %q", action))
	}

	if !m.CanTransition(from, to) {
		e := base
		e.Kind = KindIllegalTransition
		if m.IsTerminal(from) {
			e.Detail = "status is terminal"
		}
		return &e
	}
	if spec.Target != to {
		e := base
		e.Kind = KindIllegalTransition
		e.Detail = fmt.Sprintf("action %s produces %s", action, spec.Target)
		return &e
	}
	if !m.Permitted(action, role) {
		e := base
		e.Kind = KindInsufficientPermission
		return &e
	}
	return nil
}

// AvailableActions lists the actions role may take from status, in menu order.
// Every option returned passes ValidateTransition for the same pair.
func (m *Machine) AvailableActions(status domain.Status, role domain.Role) []ActionOption {
	var out []ActionOption
	for _, action := range m.order {
		spec := m.actions[action]
		if !m.CanTransition(status, spec.Target) || !m.Permitted(action, role) {
			continue
		}
		out = append(out, ActionOption{
			Action:         action,
			TargetStatus:   spec.Target,
			Label:          spec.Label,
			RequiresReason: spec.RequiresReason,
		})
	}
	return out
}

// Apply validates req against appt and returns the updated appointment and the
// change record. appt is not modified.
func (m *Machine) Apply(appt domain.Appointment, req Request, now time.Time) (domain.Appointment, domain.AppointmentStatusChange, error) {
	to := req.To
	if to == "" {
		if spec, ok := m.actions[req.Action]; ok {
			to = spec.Target
		}
	}

	if err := m.validate(appt.Status, to, req.Role, req.Action); err != nil {
		return domain.Appointment{}, domain.AppointmentStatusChange{}, err
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return domain.Appointment{}, domain.AppointmentStatusChange{}, &TransitionError{
			Kind: KindInvalidInput, From: appt.Status, To: to, Role: req.Role, Action: req.Action,
			Detail: "actor id is required",
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if m.actions[req.Action].RequiresReason && reason == "" {
		return domain.Appointment{}, domain.AppointmentStatusChange{}, &TransitionError{
			Kind: KindReasonRequired, From: appt.Status, To: to, Role: req.Role, Action: req.Action,
		}
	}

	changedAt := now.UTC()
	if last, ok := appt.LastChange(); ok && changedAt.Before(last.ChangedAt) {
		changedAt = last.ChangedAt
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Appointment{}, domain.AppointmentStatusChange{}, err
	}

	var meta map[string]string
	if len(req.Metadata) > 0 {
		meta = maps.Clone(req.Metadata)
	}

	change := domain.AppointmentStatusChange{
		ID:            id,
		AppointmentID: appt.ID,
		FromStatus:    appt.Status,
		ToStatus:      to,
		ActorID:       req.ActorID,
		ActorRole:     req.Role,
		Action:        req.Action,
		Reason:        reason,
		Metadata:      meta,
		ChangedAt:     changedAt,
	}

	out := appt
	out.Status = to
	out.Version = appt.Version + 1
	out.UpdatedAt = changedAt
	out.StatusHistory = make([]domain.AppointmentStatusChange, 0, len(appt.StatusHistory)+1)
	out.StatusHistory = append(out.StatusHistory, appt.StatusHistory...)
	out.StatusHistory = append(out.StatusHistory, change)

	return out, change, nil
}
