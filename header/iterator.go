package header

// Iterator is a forward cursor over an ordered header list, with
// re-parse support (rewinding to the start without reordering the
// underlying list). It is invalidated only by Reparse, never by new
// headers being appended to the list it walks (spec.md §9).
type Iterator struct {
	list *[]*Header
	pos  int
}

// NewIterator returns an iterator over list, starting before the first
// element.
func NewIterator(list *[]*Header) *Iterator {
	return &Iterator{list: list, pos: 0}
}

// Next returns the next unread header and advances the cursor, or returns
// (nil, false) once the last header has been returned.
func (it *Iterator) Next() (*Header, bool) {
	if it == nil || it.list == nil || it.pos >= len(*it.list) {
		return nil, false
	}
	h := (*it.list)[it.pos]
	it.pos++
	return h, true
}

// Peek returns the next header without advancing the cursor.
func (it *Iterator) Peek() (*Header, bool) {
	if it == nil || it.list == nil || it.pos >= len(*it.list) {
		return nil, false
	}
	return (*it.list)[it.pos], true
}

// Reparse rewinds the cursor to the beginning of the list.
func (it *Iterator) Reparse() {
	it.pos = 0
}
