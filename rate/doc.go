// Package rate
// Author: momentics <momentics@gmail.com>
//
// Minimal interval-based rate limiting with mockable time.
package rate
