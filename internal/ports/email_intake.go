package ports

// EmailIntake defines the interface for services that receive emails continuously
type EmailIntake interface {
	// Start starts the intake service
	Start() error

	// Stop stops the intake service
	Stop() error
}
