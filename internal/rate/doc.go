// Package rate implements the fixed-window request limiter behind the HTTP
// route limits.
//
// Each window is one Redis counter: INCR, then EXPIRE on the first hit. Keys
// are "<prefix>rl:<scope>:<subject>", where subject is usually a client IP.
package rate
