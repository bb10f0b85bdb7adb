// Package queue persists conversion work items in SQLite and defines the
// status lifecycle the workflow manager drives them through.
package queue
