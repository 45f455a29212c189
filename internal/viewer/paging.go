package viewer

import "github.com/angelmondragon/invoice-review/internal/reviewsession"

// Prev moves one page back; it is a no-op on the first page.
func Prev(state reviewsession.DocumentState) reviewsession.DocumentState {
	if state.Page > 0 {
		state.Page--
	}
	return state
}

// Next moves one page forward; it is a no-op on the last page.
func Next(state reviewsession.DocumentState) reviewsession.DocumentState {
	if state.Page < state.PageCount-1 {
		state.Page++
	}
	return state
}

// Guard resets an out-of-range page to 0 and reports whether it did.
func Guard(state reviewsession.DocumentState) (reviewsession.DocumentState, bool) {
	if state.Page < 0 || state.Page >= state.PageCount {
		state.Page = 0
		return state, true
	}
	return state, false
}
