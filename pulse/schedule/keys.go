// Package schedule fires cron-scheduled jobs and reports each firing to
// job listeners.
//
// Every firing gets a fresh fire instance id. Listeners see
// JobToBeExecuted first, then either JobExecutionVetoed or JobWasExecuted
// with the job's error.
package schedule

import "strings"

// DefaultGroup is used when a key is created without a group.
const DefaultGroup = "DEFAULT"

// JobKey identifies a job by group and name.
type JobKey struct {
	Group string
	Name  string
}

// NewJobKey builds a key, defaulting the group.
func NewJobKey(name, group string) JobKey {
	if group == "" {
		group = DefaultGroup
	}
	return JobKey{Group: group, Name: name}
}

// String renders the key as "group.name".
func (k JobKey) String() string { return k.Group + "." + k.Name }

// TriggerKey identifies a trigger by group and name.
type TriggerKey struct {
	Group string
	Name  string
}

// NewTriggerKey builds a key, defaulting the group.
func NewTriggerKey(name, group string) TriggerKey {
	if group == "" {
		group = DefaultGroup
	}
	return TriggerKey{Group: group, Name: name}
}

// String renders the key as "group.name".
func (k TriggerKey) String() string { return k.Group + "." + k.Name }

// SplitKey splits a "group.name" string at the first dot. A string without
// a dot is a name in DefaultGroup.
func SplitKey(s string) (group, name string) {
	group, name, found := strings.Cut(s, ".")
	if !found {
		return DefaultGroup, s
	}
	return group, name
}
