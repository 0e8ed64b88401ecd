package evnet

import "sync/atomic"

// Application is a Thread that additionally installs itself as the
// process-wide "current application" while its loop is running. Per spec.md
// §9's design note, this is an internal convenience only: library-internal
// code may look it up with CurrentApplication, but it must never be the
// primary way user handlers reach their own Thread (they receive it
// explicitly wherever the API calls for one).
type Application struct {
	*Thread
}

var currentApplication atomic.Pointer[Application]

// NewApplication constructs the Application singleton Thread.
func NewApplication(name string) *Application {
	app := &Application{Thread: NewThread(name, nil)}

	userOnInit := app.onInit
	app.SetOnInit(func() bool {
		currentApplication.Store(app)
		if userOnInit != nil {
			return userOnInit()
		}
		return true
	})

	userOnExit := app.onExit
	app.SetOnExit(func() {
		currentApplication.CompareAndSwap(app, nil)
		if userOnExit != nil {
			userOnExit()
		}
	})

	return app
}

// CurrentApplication returns the Application whose Start goroutine is
// currently executing, or nil if none is running. Intended for
// library-internal convenience lookups only.
func CurrentApplication() *Application {
	return currentApplication.Load()
}
