package lifecycle

import "bookly/backend/internal/domain"

// ActionSpec describes one semantic action and the status it produces.
type ActionSpec struct {
	Target         domain.Status
	Label          string
	RequiresReason bool
}

// Tables is the data the Machine is built from. Edges is the single source of
// truth for structural legality; Actions and Permissions are consulted
// independently of it.
type Tables struct {
	Edges       map[domain.Status][]domain.Status
	Actions     map[domain.Action]ActionSpec
	Permissions map[domain.Action][]domain.Role
	// ActionOrder fixes the order actions are offered in menus.
	ActionOrder []domain.Action
}

func DefaultTables() Tables {
	return Tables{
		Edges: map[domain.Status][]domain.Status{
			domain.StatusRequested:   {domain.StatusConfirmed, domain.StatusCancelled, domain.StatusRescheduled},
			domain.StatusConfirmed:   {domain.StatusInProgress, domain.StatusCancelled, domain.StatusNoShow, domain.StatusRescheduled},
			domain.StatusInProgress:  {domain.StatusCompleted},
			domain.StatusRescheduled: {domain.StatusConfirmed, domain.StatusCancelled},
			domain.StatusCompleted:   {},
			domain.StatusCancelled:   {},
			domain.StatusNoShow:      {},
		},
		Actions: map[domain.Action]ActionSpec{
			domain.ActionConfirm:    {Target: domain.StatusConfirmed, Label: "Confirm appointment"},
			domain.ActionStart:      {Target: domain.StatusInProgress, Label: "Start appointment"},
			domain.ActionComplete:   {Target: domain.StatusCompleted, Label: "Mark as completed"},
			domain.ActionCancel:     {Target: domain.StatusCancelled, Label: "Cancel appointment", RequiresReason: true},
			domain.ActionMarkNoShow: {Target: domain.StatusNoShow, Label: "Mark as no-show", RequiresReason: true},
			domain.ActionReschedule: {Target: domain.StatusRescheduled, Label: "Reschedule"},
		},
		Permissions: map[domain.Action][]domain.Role{
			domain.ActionConfirm:    {domain.RoleProvider, domain.RoleAdmin},
			domain.ActionStart:      {domain.RoleProvider, domain.RoleAdmin},
			domain.ActionComplete:   {domain.RoleProvider, domain.RoleAdmin},
			domain.ActionCancel:     {domain.RoleClient, domain.RoleProvider, domain.RoleAdmin},
			domain.ActionMarkNoShow: {domain.RoleProvider, domain.RoleAdmin},
			domain.ActionReschedule: {domain.RoleClient, domain.RoleProvider, domain.RoleAdmin},
		},
		ActionOrder: []domain.Action{
			domain.ActionConfirm,
			domain.ActionStart,
			domain.ActionComplete,
			domain.ActionReschedule,
			domain.ActionMarkNoShow,
			domain.ActionCancel,
		},
	}
}

// TerminalStatuses have no outbound edges.
var TerminalStatuses = []domain.Status{
	domain.StatusCompleted,
	domain.StatusCancelled,
	domain.StatusNoShow,
}
