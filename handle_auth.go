package hdfsftpd

import (
	"time"
)

// handleUSER begins a login attempt. A second USER while awaiting a
// password restarts the attempt, matching RFC 959 (spec §4.4).
func handleUSER(c *Client, arg string) error {
	if arg == "" {
		c.writeMessage(StatusSyntaxErrorParams, "USER requires a login")

		return nil
	}

	c.mu.Lock()
	c.candidateUser = arg
	c.authState = stateAwaitingPassword
	c.mu.Unlock()

	c.writeMessage(StatusUserOK, "please specify the password")

	return nil
}

// handlePASS validates the candidate login's password, enforcing the
// per-session lockout after MaxPasswordTries failures (spec §4.4,
// TOO_MANY_PASS_TRIES).
func handlePASS(c *Client, arg string) error {
	c.mu.RLock()
	login := c.candidateUser
	state := c.authState
	c.mu.RUnlock()

	if state != stateAwaitingPassword {
		c.writeFSError(newAuthError(StatusBadCommandSequence, "login with USER first"))

		return nil
	}

	if delay := c.server.config.CheckPassDelay; delay > 0 {
		time.Sleep(delay)
	}

	user, ok := c.server.users.SearchByLogin(login)
	if !ok || !user.checkPassword(arg) {
		return c.failLogin(user)
	}

	if !user.tryAcquireSlot() {
		c.writeFSError(newAuthError(StatusNotLoggedIn, "too many clients for this account"))

		return nil
	}

	c.mu.Lock()
	previous := c.user
	c.user = user
	c.authState = stateLoggedIn
	c.cwd = "/"
	c.mu.Unlock()

	// A session can log in more than once (RFC 959 allows USER/PASS to
	// restart the login); the slot held by whichever account was logged
	// in before must be released or it leaks forever (spec §3's
	// uiNumberOfClient invariant).
	if previous != nil && previous != user {
		if previous.releaseSlot() {
			c.server.users.reap(previous.Login())
		}
	}

	c.server.sink.Handle(Event{Kind: EventClientAuth, Client: c, User: user})
	c.writeMessage(StatusUserLoggedIn, "login successful")

	return nil
}

func (c *Client) failLogin(user *User) error {
	c.mu.Lock()
	c.passwordTries++
	tries := c.passwordTries
	c.mu.Unlock()

	if tries >= c.server.config.MaxPasswordTries {
		c.server.sink.Handle(Event{Kind: EventTooManyPassTries, Client: c})
		c.writeFSError(newAuthError(StatusNotLoggedIn, "too many failed login attempts"))

		return errQuit
	}

	_ = user

	c.writeFSError(newAuthError(StatusNotLoggedIn, "login or password incorrect"))

	return nil
}
