package supervisor

// FakeWatchdog counts feeds for tests.
type FakeWatchdog struct {
	Feeds  int
	Closed bool
}

func (w *FakeWatchdog) Feed() error {
	w.Feeds++
	return nil
}

func (w *FakeWatchdog) Close() error {
	w.Closed = true
	return nil
}

// FakeRestarter records restart requests instead of exiting.
type FakeRestarter struct {
	Reasons []string
}

func (r *FakeRestarter) Restart(reason string) {
	r.Reasons = append(r.Reasons, reason)
}
