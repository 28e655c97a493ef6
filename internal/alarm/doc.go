// Package alarm implements the security rule engine: the mutually
// exclusive alarm modes (armed, disarmed, at-home), the SOS action,
// automatic enrolment of security sensors into the system rules,
// door-left-open reminders and timer-driven user scenes.
package alarm
