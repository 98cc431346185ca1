package guard

// unexported helpers relating to channels

// closedChan is returned by Wait methods when there is nothing to wait for.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// isClosed reports whether c has been closed, without blocking. A nil channel is never closed.
func isClosed(c <-chan struct{}) bool {
	if c == nil {
		return false
	}

	select {
	case <-c:
		return true
	default:
		return false
	}
}
