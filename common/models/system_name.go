package models

// SystemName is the name of a system that provided some piece of data stored in the database.
// This can include external directories like LDAP, other external systems, as well as our own
// local account store and associated admin tooling.
type SystemName string

func (s SystemName) String() string {
	return string(s)
}

// LocalSystem is the system name to use for group memberships managed directly through this
// product's own admin interface.
const LocalSystem SystemName = "local"

// LDAPSystem is the system name to use for group memberships synced in from an external LDAP
// or Active Directory source.
const LDAPSystem SystemName = "ldap"

// TestsSystem is the system name to use when data is being created for unit or integration tests.
const TestsSystem SystemName = "tests"
