// Package domain holds the core types shared across the viral opportunity
// pipeline: signals, opportunities, briefs, and alerts, along with the
// status machines and error taxonomy enforced in application code.
package domain
