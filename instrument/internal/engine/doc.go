// Package engine rewrites one method at a time for suspend/resume.
//
// Pipeline per method:
//  1. Analyze frames (instrument/internal/frame)
//  2. Collect suspension points at suspendable calls
//  3. Split exception ranges around each point
//  4. Emit the dispatch prologue, save/restore blocks and cleanup handlers
package engine
