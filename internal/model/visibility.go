package model

import "time"

// VisibilityWindow tracks a user's soft-leave point in a conversation.
// Since is the instant the user hid the conversation; messages created at or
// before Since stay invisible to that user. Active is true from the moment of
// hiding until the next message arrives in the conversation (which clears the
// flag for every member but keeps Since, so pre-hide history never comes back).
type VisibilityWindow struct {
	Since  time.Time
	Active bool
}

// Visible reports whether a message created at t falls inside the window.
func (w VisibilityWindow) Visible(t time.Time) bool {
	if w.Since.IsZero() {
		return true
	}
	return t.After(w.Since)
}

// FilterVisible returns the subset of messages visible under the window,
// preserving order. With a zero window the input is returned unchanged.
func FilterVisible(messages []Message, w VisibilityWindow) []Message {
	if w.Since.IsZero() {
		return messages
	}
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if w.Visible(m.CreatedAt) {
			out = append(out, m)
		}
	}
	return out
}
