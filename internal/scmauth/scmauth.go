// Package scmauth is a narrow stand-in for the SCM auth probe (spec
// §6.1): the executor and the `repo` subcommand only ever need to know
// whether SCM credentials are usable, never how they were obtained.
package scmauth

import "context"

// Status is the outcome of a credential probe.
type Status struct {
	Authenticated bool
	Principal     string // e.g. the authenticated user/service account
	Detail        string
}

// Prober reports whether the environment's SCM credentials are usable.
type Prober interface {
	Probe(ctx context.Context) (Status, error)
}

// AlwaysAuthenticated is a Prober stub that always reports success,
// standing in for the real credential-discovery probe.
type AlwaysAuthenticated struct {
	Principal string
}

// Probe always reports Authenticated: true.
func (a AlwaysAuthenticated) Probe(_ context.Context) (Status, error) {
	principal := a.Principal
	if principal == "" {
		principal = "local"
	}
	return Status{Authenticated: true, Principal: principal, Detail: "stub probe, no credential discovery performed"}, nil
}
