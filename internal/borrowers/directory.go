package borrowers

import "sync"

// Directory is the authoritative in-memory borrower table, keyed by phone
// number. It is replaced wholesale on upload, never partially merged.
type Directory struct {
	mu      sync.Mutex
	byPhone map[string]Borrower
	order   []string
}

func NewDirectory() *Directory {
	return &Directory{byPhone: map[string]Borrower{}}
}

// Replace swaps the whole table for the given list. Prior contents are
// discarded regardless of overlap.
func (d *Directory) Replace(list []Borrower) {
	byPhone := make(map[string]Borrower, len(list))
	order := make([]string, 0, len(list))
	for _, b := range list {
		if _, dup := byPhone[b.Phone]; !dup {
			order = append(order, b.Phone)
		}
		byPhone[b.Phone] = b
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byPhone = byPhone
	d.order = order
}

func (d *Directory) Get(phone string) (Borrower, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.byPhone[phone]
	return b, ok
}

// List returns borrowers in upload order.
func (d *Directory) List() []Borrower {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Borrower, 0, len(d.order))
	for _, phone := range d.order {
		out = append(out, d.byPhone[phone])
	}
	return out
}

func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byPhone)
}
