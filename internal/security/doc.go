// Package security derives a posture summary from the engine configuration
// so operators can see at startup which protections are active.
package security
