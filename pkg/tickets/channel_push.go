package tickets

import "errors"

// push sends this channel's ref to its configured remote.
func (c *Channel) push() error {
	out, err := c.runGit("push", c.remote, c.ref()+":"+c.ref())
	if err != nil {
		return errors.New(out)
	}
	return nil
}

// fetchAndSync fetches the remote's copy of this channel's ref and hard
// resets the local working tree to it, discarding any local commits that
// were never pushed. Callers that have a pending unpushed event must
// re-apply it after calling this.
func (c *Channel) fetchAndSync() error {
	if out, err := c.runGit("fetch", c.remote, c.ref()); err != nil {
		return gitFatal("tickets_fetch_failed", "git fetch failed", out, err)
	}
	if out, err := c.runGit("reset", "--hard", "FETCH_HEAD"); err != nil {
		return gitFatal("tickets_fetch_failed", "could not sync working tree to fetched ref", out, err)
	}
	return nil
}
