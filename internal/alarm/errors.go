package alarm

import "errors"

var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrSystemRuleMissing is returned when a seeded alarm-mode rule
	// is absent: the database was not provisioned.
	ErrSystemRuleMissing = errors.New("system rule missing: database not provisioned")

	// ErrInvalidMode is returned for a mode outside Arm/Disarm/AtHome.
	ErrInvalidMode = errors.New("invalid alarm mode")
)
