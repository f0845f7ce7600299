package auth

// Principal is the execution context a unit of work runs under. Event
// delivery happens outside any user session, so the router constructs an
// elevated principal and passes it to handlers explicitly.
type Principal struct {
	name     string
	elevated bool
}

// SystemPrincipal returns an elevated principal for background work.
func SystemPrincipal(name string) Principal {
	return Principal{name: name, elevated: true}
}

// AnonymousPrincipal carries no privileges.
func AnonymousPrincipal() Principal {
	return Principal{name: "anonymous"}
}

func (p Principal) Name() string   { return p.name }
func (p Principal) Elevated() bool { return p.elevated }
