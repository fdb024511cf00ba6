// Package services holds cross-cutting helpers shared by the external tool
// adapters: the failure taxonomy used for retry classification and the
// context keys that thread media/job identifiers through stage execution.
package services
