package reply

// Store exposes the reply catalog to the selector and HTTP handlers.
type Store interface {
	List() []Category
	FindByID(id string) (Category, bool)
	Fallbacks() []string
}

// MemoryStore implements Store with in-memory slices.
type MemoryStore struct {
	items     []Category
	fallbacks []string
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied catalog.
func NewMemoryStore(items []Category, fallbacks []string) *MemoryStore {
	return &MemoryStore{
		items:     append([]Category(nil), items...),
		fallbacks: append([]string(nil), fallbacks...),
	}
}

// List returns the categories in priority order.
func (s *MemoryStore) List() []Category {
	return append([]Category(nil), s.items...)
}

// FindByID looks up a category by identifier.
func (s *MemoryStore) FindByID(id string) (Category, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Category{}, false
}

// Fallbacks returns the no-match reply pool.
func (s *MemoryStore) Fallbacks() []string {
	return append([]string(nil), s.fallbacks...)
}
