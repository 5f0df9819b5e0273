package posixtest

// TestingT is an interface that is compatible with the testing.T.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

type tHelper interface {
	Helper()
}

// Receiver is any object in posixtest that expects to receive commands.
type Receiver interface {
	Received(matchFn CommandMatcher) error
	NotReceived(matchFn CommandMatcher) error
}

func helper(t TestingT) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
}

// ReceivedEqual asserts that a command was received.
func ReceivedEqual(t TestingT, m Receiver, command string) {
	helper(t)
	if err := m.Received(Equal(command)); err != nil {
		t.Errorf("Expected to have received command `%s`: %v", command, err)
	}
}

// ReceivedWithPrefix asserts that a command with the given prefix was received.
func ReceivedWithPrefix(t TestingT, m Receiver, prefix string) {
	helper(t)
	if err := m.Received(HasPrefix(prefix)); err != nil {
		t.Errorf("Expected to have received a command starting with `%s`: %v", prefix, err)
	}
}

// ReceivedContains asserts that a command with the given substring was received.
func ReceivedContains(t TestingT, m Receiver, substring string) {
	helper(t)
	if err := m.Received(Contains(substring)); err != nil {
		t.Errorf("Expected to have received a command with substring `%s`: %v", substring, err)
	}
}

// NotReceivedEqual asserts that a command was not received.
func NotReceivedEqual(t TestingT, m Receiver, command string) {
	helper(t)
	if err := m.NotReceived(Equal(command)); err != nil {
		t.Errorf("Expected to not have received command `%s` but did.", command)
	}
}

// NotReceivedContains asserts that a command with the given substring was not received.
func NotReceivedContains(t TestingT, m Receiver, substring string) {
	helper(t)
	if err := m.NotReceived(Contains(substring)); err != nil {
		t.Errorf("Expected to not have received a command with substring `%s` but did.", substring)
	}
}
