package ledger

import "github.com/ethereum/go-ethereum/common"

// Journaled is implemented by state holders that can roll back every
// mutation made after a mark. Marks nest; entries are only kept while at
// least one mark is open.
//
// Claim binds the book to one caller's atomic call. Claims by the same
// caller nest; any other caller is refused with guard.ErrLocked until the
// last Unclaim.
type Journaled interface {
	Mark() int
	Rollback(mark int)
	Release(mark int)
	Claim(owner common.Address) error
	Unclaim()
}

type journal struct {
	entries []func()
	open    int
}

func (j *journal) append(undo func()) {
	if j.open == 0 {
		return
	}
	j.entries = append(j.entries, undo)
}

func (j *journal) mark() int {
	j.open++
	return len(j.entries)
}

func (j *journal) rollback(mark int) {
	if mark < 0 || mark > len(j.entries) {
		return
	}
	for i := len(j.entries) - 1; i >= mark; i-- {
		j.entries[i]()
	}
	j.entries = j.entries[:mark]
}

func (j *journal) release() {
	if j.open > 0 {
		j.open--
	}
	if j.open == 0 {
		j.entries = j.entries[:0]
	}
}

// Atomic runs fn as owner's call with every book claimed and marked. On error
// all books are rolled back to their mark; the marks are released either way.
// A book already claimed by another owner fails the call before fn runs, so
// an engine reached from inside a second engine's call cannot leave state
// behind when that outer call is rolled back.
func Atomic(owner common.Address, fn func() error, books ...Journaled) error {
	for i, book := range books {
		if err := book.Claim(owner); err != nil {
			for j := i - 1; j >= 0; j-- {
				books[j].Unclaim()
			}
			return err
		}
	}
	defer func() {
		for i := len(books) - 1; i >= 0; i-- {
			books[i].Unclaim()
		}
	}()

	marks := make([]int, len(books))
	for i, book := range books {
		marks[i] = book.Mark()
	}
	err := fn()
	for i := len(books) - 1; i >= 0; i-- {
		if err != nil {
			books[i].Rollback(marks[i])
		}
		books[i].Release(marks[i])
	}
	return err
}
