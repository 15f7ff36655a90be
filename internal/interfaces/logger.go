package interfaces

// Logger is the minimal logging contract the reactor and its backends
// depend on. internal/logging.Logger satisfies it; callers may supply their
// own implementation through Options.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Observer receives counters for reactor activity. Implementations must be
// safe to call from the goroutine driving Wait/Dispatch.
type Observer interface {
	ObserveWait(readyCount int, latencyNs uint64)
	ObserveDispatch(callbacksDelivered int, latencyNs uint64)
	ObserveRead(bytes uint64, success bool)
	ObserveWrite(bytes uint64, success bool)
	ObserveAccept(success bool)
	ObserveConnect(success bool)
	ObserveListen(success bool)
	ObserveClose(success bool)
	ObserveError(kind ErrorKind)
}
