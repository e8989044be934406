// Package thread pins work to OS threads.
//
// GL contexts are current per OS thread, so every goroutine that owns
// a context runs on a Looper, and window-system calls go through the
// main thread.
// See: https://github.com/golang/go/wiki/LockOSThread
package thread

import "github.com/faiface/mainthread"

// Wrap runs f while the main thread serves Call requests.
// It must be called from main.
func Wrap(f func()) { mainthread.Run(f) }

// Call runs f on the main thread and blocks until it finishes.
// Calls made outside of Wrap block forever.
func Call(f func()) { mainthread.Call(f) }

// CallErr is Call for functions that fail.
func CallErr(f func() error) error { return mainthread.CallErr(f) }
