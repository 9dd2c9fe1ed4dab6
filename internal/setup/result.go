package setup

// InstallOutcome records what the install phase did.
type InstallOutcome int

const (
	// Skipped means skip_install was set.
	Skipped InstallOutcome = iota
	// Cached means a matching version was found in the tool cache.
	Cached
	// Installed means the SDK was downloaded and installed.
	Installed
)

func (o InstallOutcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Cached:
		return "cached"
	case Installed:
		return "installed"
	default:
		return "unknown"
	}
}

// AuthOutcome records how authentication was settled.
type AuthOutcome int

const (
	// UnauthenticatedWarned means no credentials were found; a warning was emitted.
	UnauthenticatedWarned AuthOutcome = iota
	// AuthenticatedViaCredentialsFile means the credentials file was activated.
	AuthenticatedViaCredentialsFile
	// AlreadyAuthenticated means the SDK already had an active account.
	AlreadyAuthenticated
)

func (o AuthOutcome) String() string {
	switch o {
	case UnauthenticatedWarned:
		return "unauthenticated"
	case AuthenticatedViaCredentialsFile:
		return "authenticated via credentials file"
	case AlreadyAuthenticated:
		return "already authenticated"
	default:
		return "unknown"
	}
}

// Result summarizes a run.
type Result struct {
	// Version is the resolved version; empty when installation was skipped.
	Version string
	// Path is the SDK root; empty when installation was skipped.
	Path    string
	Install InstallOutcome
	Auth    AuthOutcome
}
